package notify

import "testing"

func TestLastIDDedupIgnoresEmptyID(t *testing.T) {
	d := NewLastIDDedup()
	d.Record("sms-threats", "")
	if d.ShouldSuppress("sms-threats", "") {
		t.Error("empty id must never be suppressed")
	}
}

func TestLastIDDedupSlotPerStream(t *testing.T) {
	d := NewLastIDDedup()
	d.Record("sms-threats", "a")

	if !d.ShouldSuppress("sms-threats", "a") {
		t.Error("expected repeat on the same stream to be suppressed")
	}
	if d.ShouldSuppress("gmail-threats", "a") {
		t.Error("streams must not share a slot")
	}

	d.Record("sms-threats", "b")
	if d.ShouldSuppress("sms-threats", "a") {
		t.Error("only the last id is remembered")
	}
}
