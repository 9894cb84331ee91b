package mail

import (
	"context"
	"errors"
	"net/smtp"
	"strings"
	"testing"
	"time"
)

var expires = time.Date(2025, 9, 2, 0, 0, 0, 0, time.UTC)

func TestRenderInvitation(t *testing.T) {
	m, err := Render(TemplateInvitation, InvitationData{
		Product:          "Hospitality Compliance",
		InviteeName:      "sam@harbour.test",
		InviterName:      "Ana Owner",
		OrganizationName: "Harbour Cafe",
		RoleName:         "Manager",
		RoleDescription:  "run daily operations and manage the team",
		PersonalMessage:  "See you <b>Monday</b>",
		AcceptURL:        "https://app.test/accept-invitation?token=abc",
		ExpiresAt:        expires,
	})
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if m.Subject != "You're invited to join Harbour Cafe - Hospitality Compliance" {
		t.Fatalf("unexpected subject %q", m.Subject)
	}
	if !strings.Contains(m.HTML, `<a href="https://app.test/accept-invitation?token=abc">Accept invitation</a>`) {
		t.Fatalf("accept link missing from html:\n%s", m.HTML)
	}
	if strings.Contains(m.HTML, "<b>Monday</b>") {
		t.Fatalf("raw html from user input must not be rendered")
	}
	for _, want := range []string{
		"You're invited to Harbour Cafe",
		"Accept invitation (https://app.test/accept-invitation?token=abc)",
		"expires on 2 September 2025",
	} {
		if !strings.Contains(m.Text, want) {
			t.Fatalf("text part missing %q:\n%s", want, m.Text)
		}
	}
}

func TestRenderOwnerInvitationOptionalSections(t *testing.T) {
	data := OwnerInvitationData{
		Product: "Hospitality Compliance", OwnerName: "Pat", ChampionName: "Lee", OrganizationName: "Harbour Cafe",
		Departments: 3, JobTitles: 4, ReadinessScore: 95, ReviewURL: "https://app.test/owner?token=t", ExpiresAt: expires,
	}
	m, err := Render(TemplateOwnerInvitation, data)
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(m.Text, "time saved") {
		t.Fatalf("ROI line rendered without IncludeROI:\n%s", m.Text)
	}
	if !strings.Contains(m.Text, "- Readiness score: 95%") {
		t.Fatalf("bullet missing:\n%s", m.Text)
	}

	data.IncludeROI, data.HoursSavedWeekly = true, 13.5
	m, err = Render(TemplateOwnerInvitation, data)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(m.Text, "- Estimated time saved: 13.5 hours per week") {
		t.Fatalf("ROI line missing:\n%s", m.Text)
	}
	if m.Subject != "Lee recommends Hospitality Compliance for Harbour Cafe" {
		t.Fatalf("subject %q", m.Subject)
	}
}

func TestRenderUnknownTemplate(t *testing.T) {
	if _, err := Render("missing.md", nil); err == nil {
		t.Fatalf("expected error")
	}
}

func TestPlainText(t *testing.T) {
	got, err := PlainText(`<style>p{}</style><h1>Title</h1><p>Hello   <strong>world</strong></p><ul><li>one</li><li>two</li></ul>`)
	if err != nil {
		t.Fatal(err)
	}
	want := "Title\n\nHello world\n\n- one\n- two"
	if got != want {
		t.Fatalf("PlainText = %q, want %q", got, want)
	}
}

func TestNewSender(t *testing.T) {
	if _, err := NewSender(Config{Driver: "pigeon"}, nil); !errors.Is(err, ErrUnknownDriver) {
		t.Fatalf("expected ErrUnknownDriver, got %v", err)
	}
	s, err := NewSender(Config{Driver: "memory"}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Send(context.Background(), Message{To: "a@b.test", Subject: "hi"}); err != nil {
		t.Fatal(err)
	}
	if got := s.(*Outbox).Messages(); len(got) != 1 || got[0].Subject != "hi" {
		t.Fatalf("unexpected outbox %+v", got)
	}
	if _, err := NewSender(Config{Driver: "smtp", From: "noreply@x.test"}, nil); err == nil {
		t.Fatalf("expected error for missing smtp host")
	}
}

func TestSMTPSenderBuildsMultipart(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Driver = "smtp"
	cfg.SMTP = SMTPConfig{Host: "smtp.test", Port: 2525, Username: "u", Password: "p"}
	s, err := NewSMTPSender(cfg)
	if err != nil {
		t.Fatal(err)
	}
	var gotAddr string
	var gotTo []string
	var gotMsg []byte
	s.send = func(addr string, a smtp.Auth, from string, to []string, msg []byte) error {
		gotAddr, gotTo, gotMsg = addr, to, msg
		return nil
	}
	err = s.Send(context.Background(), Message{To: "Sam <sam@harbour.test>", Subject: "Café invite", Text: "plain", HTML: "<p>html</p>"})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if gotAddr != "smtp.test:2525" || len(gotTo) != 1 || gotTo[0] != "sam@harbour.test" {
		t.Fatalf("unexpected envelope %s %v", gotAddr, gotTo)
	}
	msg := string(gotMsg)
	for _, want := range []string{"multipart/alternative", "text/plain; charset=utf-8", "text/html; charset=utf-8", "Subject: =?utf-8?q?Caf=C3=A9_invite?="} {
		if !strings.Contains(msg, want) {
			t.Fatalf("message missing %q:\n%s", want, msg)
		}
	}
}
