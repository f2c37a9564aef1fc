package app

import (
	"context"
	"net/http"
	"testing"

	"diocese/api/internal/store"
)

func TestContactReadToggle(t *testing.T) {
	var calls []bool
	fs := newFakeStore()
	fs.setContactReadFn = func(_ context.Context, id string, read bool) (store.Contact, error) {
		calls = append(calls, read)
		return store.Contact{ID: id, IsRead: read}, nil
	}
	svc := newTestService(fs)
	token := signedIn(t, svc, fs, "bishop", "admin")
	client := newTestClient(t, svc)

	rr := client.do(http.MethodPut, "/api/admin/contacts/con_1/read", token, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("mark read: expected 200, got %d %s", rr.Code, rr.Body.String())
	}
	rr = client.do(http.MethodPut, "/api/admin/contacts/con_1/read", token, map[string]any{"isRead": false})
	if rr.Code != http.StatusOK {
		t.Fatalf("mark unread: expected 200, got %d", rr.Code)
	}
	if len(calls) != 2 || !calls[0] || calls[1] {
		t.Fatalf("expected read then unread, got %v", calls)
	}
}

func TestActivateChargeRecordsPublishRevision(t *testing.T) {
	fs := newFakeStore()
	fs.activateChargeFn = func(_ context.Context, id string) (store.BishopCharge, error) {
		return store.BishopCharge{ID: id, Title: "Easter", Content: "<p>Alleluia</p>", IsActive: true}, nil
	}
	hist := &fakeHistory{}
	svc := newTestService(fs)
	svc.history = hist
	token := signedIn(t, svc, fs, "bishop", "admin")
	client := newTestClient(t, svc)

	rr := client.do(http.MethodPost, "/api/admin/bishops-charge/chg_1/activate", token, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("activate: expected 200, got %d %s", rr.Code, rr.Body.String())
	}
	if active := decodeResponse(t, rr)["isActive"]; active != true {
		t.Fatalf("expected active charge, got %v", active)
	}
	commits := hist.Commits()
	if len(commits) != 1 || commits[0].message != "Publish charge" || commits[0].author != "bishop" {
		t.Fatalf("unexpected commits %+v", commits)
	}
}

func TestCreateActiveChargePublishesIt(t *testing.T) {
	var inserted []store.BishopCharge
	fs := newFakeStore()
	fs.insertChargeFn = func(_ context.Context, item store.BishopCharge) (store.BishopCharge, error) {
		inserted = append(inserted, item)
		return item, nil
	}
	fs.getActiveChargeFn = func(context.Context) (*store.BishopCharge, error) {
		for i := len(inserted) - 1; i >= 0; i-- {
			if inserted[i].IsActive {
				item := inserted[i]
				return &item, nil
			}
		}
		return nil, nil
	}
	svc := newTestService(fs)
	token := signedIn(t, svc, fs, "bishop", "admin")
	client := newTestClient(t, svc)

	rr := client.do(http.MethodPost, "/api/admin/bishops-charge", token, map[string]any{
		"title":    "Lenten Charge",
		"content":  "<p>Return to the Lord</p>",
		"isActive": true,
	})
	if rr.Code != http.StatusCreated {
		t.Fatalf("create: expected 201, got %d %s", rr.Code, rr.Body.String())
	}
	created := decodeResponse(t, rr)
	if created["isActive"] != true {
		t.Fatalf("expected active charge, got %v", created)
	}
	if len(inserted) != 1 || !inserted[0].IsActive {
		t.Fatalf("expected one active insert, got %+v", inserted)
	}

	rr = client.do(http.MethodGet, "/api/bishops-charge", "", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("active: expected 200, got %d", rr.Code)
	}
	if id := decodeResponse(t, rr)["id"]; id != created["id"] {
		t.Fatalf("expected %v to be the published charge, got %v", created["id"], id)
	}
}

func TestActiveChargeIsNullWhenNothingPublished(t *testing.T) {
	client := newTestClient(t, newTestService(newFakeStore()))

	rr := client.do(http.MethodGet, "/api/bishops-charge", "", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if body := rr.Body.String(); body != "null\n" {
		t.Fatalf("expected null body, got %q", body)
	}
}

func TestOptionalFeaturesReportUnavailable(t *testing.T) {
	fs := newFakeStore()
	svc := newTestService(fs)
	token := signedIn(t, svc, fs, "bishop", "admin")
	client := newTestClient(t, svc)

	tests := []struct {
		path string
		code string
	}{
		{"/api/admin/bishops-charge/chg_1/history", "HISTORY_UNAVAILABLE"},
		{"/api/admin/bishops-charge/chg_1/export?format=pdf", "EXPORT_UNAVAILABLE"},
	}
	for _, tt := range tests {
		rr := client.do(http.MethodGet, tt.path, token, nil)
		if rr.Code != http.StatusServiceUnavailable {
			t.Fatalf("%s: expected 503, got %d", tt.path, rr.Code)
		}
		if code := decodeResponse(t, rr)["code"]; code != tt.code {
			t.Fatalf("%s: expected %s, got %v", tt.path, tt.code, code)
		}
	}
}

func TestListTemplates(t *testing.T) {
	fs := newFakeStore()
	svc := newTestService(fs)
	token := signedIn(t, svc, fs, "reader", "viewer")
	client := newTestClient(t, svc)

	rr := client.do(http.MethodGet, "/api/admin/templates", token, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	items, _ := decodeResponse(t, rr)["templates"].([]any)
	if len(items) != 7 {
		t.Fatalf("expected 7 templates, got %d", len(items))
	}
	first := items[0].(map[string]any)
	if first["id"] != "blank" || first["content"] != "<p></p>" {
		t.Fatalf("expected blank template first, got %v", first)
	}

	rr = client.do(http.MethodGet, "/api/admin/templates/nope", token, nil)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rr.Code)
	}
}
