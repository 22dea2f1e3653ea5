package notify

import (
	"testing"

	"github.com/earlfranciss/swiftshield/internal/model"
)

func TestBannerAutoDismiss(t *testing.T) {
	var b Banner
	token := b.Show(model.Toast{ID: "t1"})

	if _, ok := b.Current(); !ok {
		t.Fatal("expected toast on screen")
	}
	if !b.Expire(token) {
		t.Error("expected Expire to clear the toast")
	}
	if _, ok := b.Current(); ok {
		t.Error("expected no toast after Expire")
	}
	if b.Expire(token) {
		t.Error("second Expire must be a no-op")
	}
}

func TestBannerNewerToastOutlivesOldTimer(t *testing.T) {
	var b Banner
	old := b.Show(model.Toast{ID: "t1"})
	b.Show(model.Toast{ID: "t2"})

	if b.Expire(old) {
		t.Error("stale timer must not clear the newer toast")
	}
	cur, ok := b.Current()
	if !ok || cur.ID != "t2" {
		t.Errorf("expected t2 on screen, got %+v (ok=%v)", cur, ok)
	}
}

func TestBannerInteractCancelsDismiss(t *testing.T) {
	var b Banner
	token := b.Show(model.Toast{ID: "t1"})

	got, ok := b.Interact()
	if !ok || got.ID != "t1" {
		t.Fatalf("expected t1 from Interact, got %+v (ok=%v)", got, ok)
	}
	if b.Expire(token) {
		t.Error("Expire after Interact must be ignored")
	}
	if _, ok := b.Interact(); ok {
		t.Error("nothing left to interact with")
	}
}

func TestBannerDismiss(t *testing.T) {
	var b Banner
	token := b.Show(model.Toast{ID: "t1"})
	b.Dismiss()

	if _, ok := b.Current(); ok {
		t.Error("expected no toast after Dismiss")
	}
	if b.Expire(token) {
		t.Error("Expire after Dismiss must be ignored")
	}
}
