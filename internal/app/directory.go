package app

import (
	"context"
	"errors"
	"net/http"

	"diocese/api/internal/search"
	"diocese/api/internal/store"
	"diocese/api/internal/util"
)

const (
	defaultEventLimit = 50
	maxEventLimit     = 200
)

// referenceError reports an unknown foreign key as a field error on field.
func referenceError(field string, err error) error {
	if errors.Is(err, store.ErrInvalidReference) {
		var v Validation
		v.add(field, "does not exist")
		return v.Err()
	}
	return err
}

func (s *Service) ListArchdeaconries(ctx context.Context) ([]store.Archdeaconry, error) {
	return s.store.ListArchdeaconries(ctx)
}

func (s *Service) GetArchdeaconry(ctx context.Context, id string) (store.Archdeaconry, error) {
	return s.store.GetArchdeaconry(ctx, id)
}

func (s *Service) CreateArchdeaconry(ctx context.Context, input ArchdeaconryInput) (store.Archdeaconry, error) {
	input.normalize()
	if err := input.Validate().Err(); err != nil {
		return store.Archdeaconry{}, err
	}
	item := store.Archdeaconry{ID: util.NewID("arc")}
	input.apply(&item)
	if err := s.store.InsertArchdeaconry(ctx, item); err != nil {
		return store.Archdeaconry{}, err
	}
	return s.store.GetArchdeaconry(ctx, item.ID)
}

func (s *Service) UpdateArchdeaconry(ctx context.Context, id string, patch ArchdeaconryPatch) (store.Archdeaconry, error) {
	item, err := s.store.GetArchdeaconry(ctx, id)
	if err != nil {
		return store.Archdeaconry{}, err
	}
	input := patch.merge(item)
	if err := input.Validate().Err(); err != nil {
		return store.Archdeaconry{}, err
	}
	input.apply(&item)
	if err := s.store.UpdateArchdeaconry(ctx, item); err != nil {
		return store.Archdeaconry{}, err
	}
	return s.store.GetArchdeaconry(ctx, id)
}

// DeleteArchdeaconry refuses while parishes still belong to the archdeaconry.
func (s *Service) DeleteArchdeaconry(ctx context.Context, id string) error {
	err := s.store.DeleteArchdeaconry(ctx, id)
	if errors.Is(err, store.ErrInUse) {
		return domainError(http.StatusConflict, "ARCHDEACONRY_IN_USE", "Reassign or delete the parishes of this archdeaconry first", nil)
	}
	return err
}

func (s *Service) ListParishes(ctx context.Context, filter store.ParishFilter) ([]store.Parish, error) {
	return s.store.ListParishes(ctx, filter)
}

func (s *Service) GetParish(ctx context.Context, id string) (store.Parish, error) {
	return s.store.GetParish(ctx, id)
}

func (s *Service) CreateParish(ctx context.Context, input ParishInput) (store.Parish, error) {
	input.normalize()
	if err := input.Validate().Err(); err != nil {
		return store.Parish{}, err
	}
	item := store.Parish{ID: util.NewID("par")}
	input.apply(&item)
	if err := s.store.InsertParish(ctx, item); err != nil {
		return store.Parish{}, referenceError("archdeaconryId", err)
	}
	saved, err := s.store.GetParish(ctx, item.ID)
	if err != nil {
		return store.Parish{}, err
	}
	s.indexParish(saved)
	return saved, nil
}

func (s *Service) UpdateParish(ctx context.Context, id string, patch ParishPatch) (store.Parish, error) {
	item, err := s.store.GetParish(ctx, id)
	if err != nil {
		return store.Parish{}, err
	}
	input := patch.merge(item)
	if err := input.Validate().Err(); err != nil {
		return store.Parish{}, err
	}
	input.apply(&item)
	if err := s.store.UpdateParish(ctx, item); err != nil {
		return store.Parish{}, referenceError("archdeaconryId", err)
	}
	saved, err := s.store.GetParish(ctx, id)
	if err != nil {
		return store.Parish{}, err
	}
	s.indexParish(saved)
	return saved, nil
}

// DeleteParish removes the parish. Its priests stay, without a parish.
func (s *Service) DeleteParish(ctx context.Context, id string) error {
	if err := s.store.DeleteParish(ctx, id); err != nil {
		return err
	}
	if s.search != nil {
		s.search.Delete(search.ResultParish, id)
	}
	return nil
}

func (s *Service) ListPriests(ctx context.Context, filter store.PriestFilter) ([]store.Priest, error) {
	return s.store.ListPriests(ctx, filter)
}

func (s *Service) GetPriest(ctx context.Context, id string) (store.Priest, error) {
	return s.store.GetPriest(ctx, id)
}

func (s *Service) CreatePriest(ctx context.Context, input PriestInput) (store.Priest, error) {
	input.normalize()
	if err := input.Validate().Err(); err != nil {
		return store.Priest{}, err
	}
	item := store.Priest{ID: util.NewID("prs")}
	input.apply(&item)
	if err := s.store.InsertPriest(ctx, item); err != nil {
		return store.Priest{}, referenceError("parishId", err)
	}
	saved, err := s.store.GetPriest(ctx, item.ID)
	if err != nil {
		return store.Priest{}, err
	}
	s.indexPriest(saved)
	return saved, nil
}

func (s *Service) UpdatePriest(ctx context.Context, id string, patch PriestPatch) (store.Priest, error) {
	item, err := s.store.GetPriest(ctx, id)
	if err != nil {
		return store.Priest{}, err
	}
	input := patch.merge(item)
	if err := input.Validate().Err(); err != nil {
		return store.Priest{}, err
	}
	input.apply(&item)
	if err := s.store.UpdatePriest(ctx, item); err != nil {
		return store.Priest{}, referenceError("parishId", err)
	}
	saved, err := s.store.GetPriest(ctx, id)
	if err != nil {
		return store.Priest{}, err
	}
	s.indexPriest(saved)
	return saved, nil
}

func (s *Service) DeletePriest(ctx context.Context, id string) error {
	if err := s.store.DeletePriest(ctx, id); err != nil {
		return err
	}
	if s.search != nil {
		s.search.Delete(search.ResultPriest, id)
	}
	return nil
}

// ListEvents returns events newest first. limit defaults to 50 and is capped at 200.
func (s *Service) ListEvents(ctx context.Context, filter store.EventFilter) ([]store.Event, error) {
	if filter.Limit <= 0 {
		filter.Limit = defaultEventLimit
	}
	if filter.Limit > maxEventLimit {
		filter.Limit = maxEventLimit
	}
	return s.store.ListEvents(ctx, filter)
}

func (s *Service) GetEvent(ctx context.Context, id string) (store.Event, error) {
	return s.store.GetEvent(ctx, id)
}

func (s *Service) CreateEvent(ctx context.Context, input EventInput) (store.Event, error) {
	input.normalize()
	if err := input.Validate().Err(); err != nil {
		return store.Event{}, err
	}
	item := store.Event{ID: util.NewID("evt")}
	input.apply(&item)
	if err := s.store.InsertEvent(ctx, item); err != nil {
		return store.Event{}, err
	}
	saved, err := s.store.GetEvent(ctx, item.ID)
	if err != nil {
		return store.Event{}, err
	}
	s.indexEvent(saved)
	return saved, nil
}

func (s *Service) UpdateEvent(ctx context.Context, id string, patch EventPatch) (store.Event, error) {
	item, err := s.store.GetEvent(ctx, id)
	if err != nil {
		return store.Event{}, err
	}
	input := patch.merge(item)
	if err := input.Validate().Err(); err != nil {
		return store.Event{}, err
	}
	input.apply(&item)
	if err := s.store.UpdateEvent(ctx, item); err != nil {
		return store.Event{}, err
	}
	saved, err := s.store.GetEvent(ctx, id)
	if err != nil {
		return store.Event{}, err
	}
	s.indexEvent(saved)
	return saved, nil
}

func (s *Service) DeleteEvent(ctx context.Context, id string) error {
	if err := s.store.DeleteEvent(ctx, id); err != nil {
		return err
	}
	if s.search != nil {
		s.search.Delete(search.ResultEvent, id)
	}
	return nil
}

// Search queries the directory. Without a search backend it returns no results.
func (s *Service) Search(ctx context.Context, q search.Query) search.Response {
	if s.search == nil {
		return search.Response{Results: []search.Result{}, Query: q.Text, Engine: "none"}
	}
	return s.search.Search(ctx, q)
}

func (s *Service) indexParish(item store.Parish) {
	if s.search == nil {
		return
	}
	s.search.IndexParish(search.ParishRecord{
		ID:               item.ID,
		Name:             item.Name,
		Address:          item.Address,
		ServiceTimes:     item.ServiceTimes,
		ArchdeaconryID:   deref(item.ArchdeaconryID),
		ArchdeaconryName: item.ArchdeaconryName,
	})
}

func (s *Service) indexPriest(item store.Priest) {
	if s.search == nil {
		return
	}
	s.search.IndexPriest(search.PriestRecord{
		ID:         item.ID,
		Name:       item.Name,
		Title:      item.Title,
		Bio:        item.Bio,
		ParishID:   deref(item.ParishID),
		ParishName: item.ParishName,
	})
}

func (s *Service) indexEvent(item store.Event) {
	if s.search == nil {
		return
	}
	s.search.IndexEvent(search.EventRecord{
		ID:          item.ID,
		Title:       item.Title,
		Description: item.Description,
		Location:    item.Location,
		Category:    item.Category,
		Date:        item.Date.Unix(),
	})
}

func deref(value *string) string {
	if value == nil {
		return ""
	}
	return *value
}
