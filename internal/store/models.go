package store

import "time"

type User struct {
	ID           string    `json:"id"`
	Username     string    `json:"username"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	Role         string    `json:"role"`
	CreatedAt    time.Time `json:"createdAt"`
}

type Archdeaconry struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	ImageURLs   []string  `json:"imageUrls"`
	ParishCount int       `json:"parishCount"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

type Parish struct {
	ID               string    `json:"id"`
	Name             string    `json:"name"`
	Address          string    `json:"address"`
	Phone            string    `json:"phone"`
	Email            string    `json:"email"`
	ServiceTimes     string    `json:"serviceTimes"`
	MapURL           string    `json:"mapUrl"`
	Latitude         string    `json:"latitude"`
	Longitude        string    `json:"longitude"`
	ImageURL         string    `json:"imageUrl"`
	ArchdeaconryID   *string   `json:"archdeaconryId"`
	ArchdeaconryName string    `json:"archdeaconryName,omitempty"`
	Priests          []Priest  `json:"priests,omitempty"`
	CreatedAt        time.Time `json:"createdAt"`
	UpdatedAt        time.Time `json:"updatedAt"`
}

type Priest struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	Title      string    `json:"title"`
	Phone      string    `json:"phone"`
	Email      string    `json:"email"`
	Bio        string    `json:"bio"`
	ImageURL   string    `json:"imageUrl"`
	ParishID   *string   `json:"parishId"`
	ParishName string    `json:"parishName,omitempty"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

type Event struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Date        time.Time `json:"date"`
	Time        string    `json:"time"`
	Location    string    `json:"location"`
	Category    string    `json:"category"`
	IsFeatured  bool      `json:"isFeatured"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

type Contact struct {
	ID        string    `json:"id"`
	FirstName string    `json:"firstName"`
	LastName  string    `json:"lastName"`
	Email     string    `json:"email"`
	Phone     string    `json:"phone"`
	Subject   string    `json:"subject"`
	Message   string    `json:"message"`
	IsRead    bool      `json:"isRead"`
	CreatedAt time.Time `json:"createdAt"`
}

type BishopCharge struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Content   string    `json:"content"`
	IsActive  bool      `json:"isActive"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

type ParishFilter struct {
	Search         string
	ArchdeaconryID string
}

type PriestFilter struct {
	Search   string
	ParishID string
}

type EventFilter struct {
	Limit        int
	Category     string
	FeaturedOnly bool
}

type ContactFilter struct {
	UnreadOnly bool
}
