package app

import (
	"net/http"
	"net/mail"
	"net/url"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"diocese/api/internal/markup"
	"diocese/api/internal/store"
)

const (
	maxNameLength    = 200
	maxMessageLength = 5000
	maxImages        = 3
	defaultTitle     = "Reverend"
	defaultCategory  = "general"
)

var eventCategories = map[string]bool{
	"general":    true,
	"worship":    true,
	"conference": true,
	"youth":      true,
	"outreach":   true,
	"synod":      true,
	"ordination": true,
	"fellowship": true,
}

type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// Validation collects field errors for one request body.
type Validation struct {
	Errors []FieldError
}

func (v *Validation) add(field, message string) {
	v.Errors = append(v.Errors, FieldError{Field: field, Message: message})
}

func (v Validation) OK() bool {
	return len(v.Errors) == 0
}

// Err returns nil when the body is valid and a 400 VALIDATION_ERROR otherwise.
func (v Validation) Err() error {
	if v.OK() {
		return nil
	}
	return domainError(http.StatusBadRequest, "VALIDATION_ERROR", "Validation failed", map[string]any{"fields": v.Errors})
}

func (v *Validation) required(field, value string) {
	if strings.TrimSpace(value) == "" {
		v.add(field, "is required")
	}
}

func (v *Validation) maxLength(field, value string, limit int) {
	if utf8.RuneCountInString(value) > limit {
		v.add(field, "must be at most "+strconv.Itoa(limit)+" characters")
	}
}

func (v *Validation) email(field, value string) {
	if value == "" {
		return
	}
	addr, err := mail.ParseAddress(value)
	if err != nil || addr.Address != value {
		v.add(field, "must be a valid email address")
	}
}

// link accepts absolute http(s) URLs and site-relative paths.
func (v *Validation) link(field, value string) {
	if value == "" {
		return
	}
	if strings.HasPrefix(value, "/") && !strings.HasPrefix(value, "//") {
		return
	}
	parsed, err := url.Parse(value)
	if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") || parsed.Host == "" {
		v.add(field, "must be an http(s) URL or a path")
	}
}

func (v *Validation) coordinate(field, value string, limit float64) {
	if value == "" {
		return
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil || parsed < -limit || parsed > limit {
		v.add(field, "must be a number between -"+strconv.FormatFloat(limit, 'f', -1, 64)+" and "+strconv.FormatFloat(limit, 'f', -1, 64))
	}
}

func trimmed(value *string) {
	if value != nil {
		*value = strings.TrimSpace(*value)
	}
}

// optionalID turns an empty reference into no reference.
func optionalID(value *string) *string {
	if value == nil {
		return nil
	}
	id := strings.TrimSpace(*value)
	if id == "" {
		return nil
	}
	return &id
}

// parseEventDate accepts RFC 3339 timestamps and plain dates.
func parseEventDate(value string) (time.Time, bool) {
	value = strings.TrimSpace(value)
	if parsed, err := time.Parse(time.RFC3339, value); err == nil {
		return parsed.UTC(), true
	}
	if parsed, err := time.Parse("2006-01-02", value); err == nil {
		return parsed, true
	}
	return time.Time{}, false
}

type ArchdeaconryInput struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	ImageURLs   []string `json:"imageUrls"`
}

func (in *ArchdeaconryInput) normalize() {
	trimmed(&in.Name)
	trimmed(&in.Description)
	images := make([]string, 0, len(in.ImageURLs))
	for _, image := range in.ImageURLs {
		if image = strings.TrimSpace(image); image != "" {
			images = append(images, image)
		}
	}
	in.ImageURLs = images
}

func (in ArchdeaconryInput) Validate() Validation {
	var v Validation
	v.required("name", in.Name)
	v.maxLength("name", in.Name, maxNameLength)
	if len(in.ImageURLs) > maxImages {
		v.add("imageUrls", "at most "+strconv.Itoa(maxImages)+" images are allowed")
	}
	for _, image := range in.ImageURLs {
		v.link("imageUrls", image)
	}
	return v
}

func (in ArchdeaconryInput) apply(item *store.Archdeaconry) {
	item.Name = in.Name
	item.Description = in.Description
	item.ImageURLs = in.ImageURLs
}

type ArchdeaconryPatch struct {
	Name        *string   `json:"name"`
	Description *string   `json:"description"`
	ImageURLs   *[]string `json:"imageUrls"`
}

// merge overlays the patch on the stored row and returns the full input to re-validate.
func (p ArchdeaconryPatch) merge(item store.Archdeaconry) ArchdeaconryInput {
	in := ArchdeaconryInput{Name: item.Name, Description: item.Description, ImageURLs: item.ImageURLs}
	if p.Name != nil {
		in.Name = *p.Name
	}
	if p.Description != nil {
		in.Description = *p.Description
	}
	if p.ImageURLs != nil {
		in.ImageURLs = *p.ImageURLs
	}
	in.normalize()
	return in
}

type ParishInput struct {
	Name           string  `json:"name"`
	Address        string  `json:"address"`
	Phone          string  `json:"phone"`
	Email          string  `json:"email"`
	ServiceTimes   string  `json:"serviceTimes"`
	MapURL         string  `json:"mapUrl"`
	Latitude       string  `json:"latitude"`
	Longitude      string  `json:"longitude"`
	ImageURL       string  `json:"imageUrl"`
	ArchdeaconryID *string `json:"archdeaconryId"`
}

func (in *ParishInput) normalize() {
	for _, field := range []*string{&in.Name, &in.Address, &in.Phone, &in.Email, &in.ServiceTimes, &in.MapURL, &in.Latitude, &in.Longitude, &in.ImageURL} {
		trimmed(field)
	}
	in.ArchdeaconryID = optionalID(in.ArchdeaconryID)
}

func (in ParishInput) Validate() Validation {
	var v Validation
	v.required("name", in.Name)
	v.maxLength("name", in.Name, maxNameLength)
	v.required("address", in.Address)
	v.email("email", in.Email)
	v.link("mapUrl", in.MapURL)
	v.link("imageUrl", in.ImageURL)
	v.coordinate("latitude", in.Latitude, 90)
	v.coordinate("longitude", in.Longitude, 180)
	return v
}

func (in ParishInput) apply(item *store.Parish) {
	item.Name = in.Name
	item.Address = in.Address
	item.Phone = in.Phone
	item.Email = in.Email
	item.ServiceTimes = in.ServiceTimes
	item.MapURL = in.MapURL
	item.Latitude = in.Latitude
	item.Longitude = in.Longitude
	item.ImageURL = in.ImageURL
	item.ArchdeaconryID = in.ArchdeaconryID
}

// ParishPatch updates only the fields present in the body. An empty
// archdeaconryId detaches the parish.
type ParishPatch struct {
	Name           *string `json:"name"`
	Address        *string `json:"address"`
	Phone          *string `json:"phone"`
	Email          *string `json:"email"`
	ServiceTimes   *string `json:"serviceTimes"`
	MapURL         *string `json:"mapUrl"`
	Latitude       *string `json:"latitude"`
	Longitude      *string `json:"longitude"`
	ImageURL       *string `json:"imageUrl"`
	ArchdeaconryID *string `json:"archdeaconryId"`
}

func (p ParishPatch) merge(item store.Parish) ParishInput {
	in := ParishInput{
		Name:           item.Name,
		Address:        item.Address,
		Phone:          item.Phone,
		Email:          item.Email,
		ServiceTimes:   item.ServiceTimes,
		MapURL:         item.MapURL,
		Latitude:       item.Latitude,
		Longitude:      item.Longitude,
		ImageURL:       item.ImageURL,
		ArchdeaconryID: item.ArchdeaconryID,
	}
	overlay(&in.Name, p.Name)
	overlay(&in.Address, p.Address)
	overlay(&in.Phone, p.Phone)
	overlay(&in.Email, p.Email)
	overlay(&in.ServiceTimes, p.ServiceTimes)
	overlay(&in.MapURL, p.MapURL)
	overlay(&in.Latitude, p.Latitude)
	overlay(&in.Longitude, p.Longitude)
	overlay(&in.ImageURL, p.ImageURL)
	if p.ArchdeaconryID != nil {
		in.ArchdeaconryID = p.ArchdeaconryID
	}
	in.normalize()
	return in
}

type PriestInput struct {
	Name     string  `json:"name"`
	Title    string  `json:"title"`
	Phone    string  `json:"phone"`
	Email    string  `json:"email"`
	Bio      string  `json:"bio"`
	ImageURL string  `json:"imageUrl"`
	ParishID *string `json:"parishId"`
}

func (in *PriestInput) normalize() {
	for _, field := range []*string{&in.Name, &in.Title, &in.Phone, &in.Email, &in.Bio, &in.ImageURL} {
		trimmed(field)
	}
	if in.Title == "" {
		in.Title = defaultTitle
	}
	in.ParishID = optionalID(in.ParishID)
}

func (in PriestInput) Validate() Validation {
	var v Validation
	v.required("name", in.Name)
	v.maxLength("name", in.Name, maxNameLength)
	v.maxLength("title", in.Title, maxNameLength)
	v.email("email", in.Email)
	v.link("imageUrl", in.ImageURL)
	return v
}

func (in PriestInput) apply(item *store.Priest) {
	item.Name = in.Name
	item.Title = in.Title
	item.Phone = in.Phone
	item.Email = in.Email
	item.Bio = in.Bio
	item.ImageURL = in.ImageURL
	item.ParishID = in.ParishID
}

// PriestPatch updates only the fields present in the body. An empty parishId
// detaches the priest.
type PriestPatch struct {
	Name     *string `json:"name"`
	Title    *string `json:"title"`
	Phone    *string `json:"phone"`
	Email    *string `json:"email"`
	Bio      *string `json:"bio"`
	ImageURL *string `json:"imageUrl"`
	ParishID *string `json:"parishId"`
}

func (p PriestPatch) merge(item store.Priest) PriestInput {
	in := PriestInput{
		Name:     item.Name,
		Title:    item.Title,
		Phone:    item.Phone,
		Email:    item.Email,
		Bio:      item.Bio,
		ImageURL: item.ImageURL,
		ParishID: item.ParishID,
	}
	overlay(&in.Name, p.Name)
	overlay(&in.Title, p.Title)
	overlay(&in.Phone, p.Phone)
	overlay(&in.Email, p.Email)
	overlay(&in.Bio, p.Bio)
	overlay(&in.ImageURL, p.ImageURL)
	if p.ParishID != nil {
		in.ParishID = p.ParishID
	}
	in.normalize()
	return in
}

type EventInput struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Date        string `json:"date"`
	Time        string `json:"time"`
	Location    string `json:"location"`
	Category    string `json:"category"`
	IsFeatured  bool   `json:"isFeatured"`
}

func (in *EventInput) normalize() {
	for _, field := range []*string{&in.Title, &in.Description, &in.Date, &in.Time, &in.Location} {
		trimmed(field)
	}
	in.Category = strings.ToLower(strings.TrimSpace(in.Category))
	if in.Category == "" {
		in.Category = defaultCategory
	}
}

func (in EventInput) Validate() Validation {
	var v Validation
	v.required("title", in.Title)
	v.maxLength("title", in.Title, maxNameLength)
	if in.Date == "" {
		v.add("date", "is required")
	} else if _, ok := parseEventDate(in.Date); !ok {
		v.add("date", "must be a date (YYYY-MM-DD) or an RFC 3339 timestamp")
	}
	if !eventCategories[in.Category] {
		v.add("category", "is not a known category")
	}
	return v
}

func (in EventInput) apply(item *store.Event) {
	item.Title = in.Title
	item.Description = in.Description
	item.Date, _ = parseEventDate(in.Date)
	item.Time = in.Time
	item.Location = in.Location
	item.Category = in.Category
	item.IsFeatured = in.IsFeatured
}

type EventPatch struct {
	Title       *string `json:"title"`
	Description *string `json:"description"`
	Date        *string `json:"date"`
	Time        *string `json:"time"`
	Location    *string `json:"location"`
	Category    *string `json:"category"`
	IsFeatured  *bool   `json:"isFeatured"`
}

func (p EventPatch) merge(item store.Event) EventInput {
	in := EventInput{
		Title:       item.Title,
		Description: item.Description,
		Date:        item.Date.UTC().Format(time.RFC3339),
		Time:        item.Time,
		Location:    item.Location,
		Category:    item.Category,
		IsFeatured:  item.IsFeatured,
	}
	overlay(&in.Title, p.Title)
	overlay(&in.Description, p.Description)
	overlay(&in.Date, p.Date)
	overlay(&in.Time, p.Time)
	overlay(&in.Location, p.Location)
	overlay(&in.Category, p.Category)
	if p.IsFeatured != nil {
		in.IsFeatured = *p.IsFeatured
	}
	in.normalize()
	return in
}

type ContactInput struct {
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Email     string `json:"email"`
	Phone     string `json:"phone"`
	Subject   string `json:"subject"`
	Message   string `json:"message"`
}

func (in *ContactInput) normalize() {
	for _, field := range []*string{&in.FirstName, &in.LastName, &in.Email, &in.Phone, &in.Subject, &in.Message} {
		trimmed(field)
	}
}

func (in ContactInput) Validate() Validation {
	var v Validation
	v.required("firstName", in.FirstName)
	v.required("lastName", in.LastName)
	v.required("email", in.Email)
	v.email("email", in.Email)
	v.required("subject", in.Subject)
	v.maxLength("subject", in.Subject, maxNameLength)
	v.required("message", in.Message)
	v.maxLength("message", in.Message, maxMessageLength)
	return v
}

type ChargeInput struct {
	Title    string `json:"title"`
	Content  string `json:"content"`
	IsActive bool   `json:"isActive"`
}

// normalize trims the title and sanitises the markup.
func (in *ChargeInput) normalize() {
	trimmed(&in.Title)
	in.Content = markup.Sanitize(in.Content)
}

func (in ChargeInput) Validate() Validation {
	var v Validation
	v.required("title", in.Title)
	v.maxLength("title", in.Title, maxNameLength)
	if markup.PlainText(in.Content) == "" {
		v.add("content", "is required")
	}
	return v
}

type ChargePatch struct {
	Title    *string `json:"title"`
	Content  *string `json:"content"`
	IsActive *bool   `json:"isActive"`
}

func (p ChargePatch) merge(item store.BishopCharge) ChargeInput {
	in := ChargeInput{Title: item.Title, Content: item.Content, IsActive: item.IsActive}
	overlay(&in.Title, p.Title)
	overlay(&in.Content, p.Content)
	if p.IsActive != nil {
		in.IsActive = *p.IsActive
	}
	in.normalize()
	return in
}

func overlay(dst *string, src *string) {
	if src != nil {
		*dst = *src
	}
}
