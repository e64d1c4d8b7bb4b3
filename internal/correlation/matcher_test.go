package correlation

import (
	"reflect"
	"testing"

	"github.com/lynsa/outreach-backend/internal/models"
)

func TestExtractCandidates(t *testing.T) {
	tests := []struct {
		name  string
		email models.InboundEmail
		want  []string
	}{
		{
			name:  "subject tag",
			email: models.InboundEmail{Subject: "Re: Jane is inviting you to connect via Lynsa [ID:a1b2c3]"},
			want:  []string{"a1b2c3"},
		},
		{
			name:  "subject tag is case insensitive and normalized",
			email: models.InboundEmail{Subject: "RE: hello [id:A1B2C3]"},
			want:  []string{"a1b2c3"},
		},
		{
			name:  "in-reply-to header",
			email: models.InboundEmail{InReplyTo: "<d4e5f6@lynsa.com>"},
			want:  []string{"d4e5f6"},
		},
		{
			name: "references headers",
			email: models.InboundEmail{
				References: []string{"<aaaaaa@lynsa.com>", "<bbbbbb@lynsa.com>"},
			},
			want: []string{"aaaaaa", "bbbbbb"},
		},
		{
			name: "subject wins over headers",
			email: models.InboundEmail{
				Subject:    "Re: hi [ID:a1b2c3]",
				InReplyTo:  "<d4e5f6@lynsa.com>",
				References: []string{"<aaaaaa@lynsa.com>"},
			},
			want: []string{"a1b2c3", "d4e5f6", "aaaaaa"},
		},
		{
			name: "duplicates collapse",
			email: models.InboundEmail{
				Subject:    "Re: hi [ID:a1b2c3]",
				InReplyTo:  "<a1b2c3@lynsa.com>",
				References: []string{"<a1b2c3@lynsa.com>"},
			},
			want: []string{"a1b2c3"},
		},
		{
			name: "malformed ids are dropped",
			email: models.InboundEmail{
				Subject:    "Re: hi [ID:zzzzzz]",
				InReplyTo:  "<CAHk-=wgMessage-Longer-Than-Six@mail.gmail.com>",
				References: []string{"<x@y>"},
			},
			want: nil,
		},
		{
			name:  "no candidates",
			email: models.InboundEmail{Subject: "Hello there", Text: "no ids here"},
			want:  nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ExtractCandidates(&tt.email)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("ExtractCandidates() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestMatch(t *testing.T) {
	tracked := map[string]bool{"d4e5f6": true}
	known := func(id string) bool { return tracked[id] }

	t.Run("returns first tracked candidate", func(t *testing.T) {
		email := &models.InboundEmail{
			Subject:   "Re: hi [ID:a1b2c3]",
			InReplyTo: "<d4e5f6@lynsa.com>",
		}

		id, ok := Match(email, known)
		if !ok {
			t.Fatal("Expected a match")
		}
		if id != "d4e5f6" {
			t.Errorf("Expected d4e5f6, got %s", id)
		}
	})

	t.Run("no tracked candidate", func(t *testing.T) {
		email := &models.InboundEmail{Subject: "Re: hi [ID:a1b2c3]"}

		if _, ok := Match(email, known); ok {
			t.Error("Expected no match for untracked id")
		}
	})
}

func TestTruncateQuoted(t *testing.T) {
	marker := "<lynsanetwork@gmail.com>"

	t.Run("cuts at the quoted original", func(t *testing.T) {
		body := "Sounds great, let's talk!\n\nOn Mon, Aug 4, 2026 at 9:00 AM Lynsa <lynsanetwork@gmail.com> wrote:\n> original message"

		got := TruncateQuoted(body, marker)
		want := "Sounds great, let's talk!\n\nOn Mon, Aug 4, 2026 at 9:00 AM Lynsa"
		if got != want {
			t.Errorf("TruncateQuoted() = %q, want %q", got, want)
		}
	})

	t.Run("no marker leaves body trimmed", func(t *testing.T) {
		got := TruncateQuoted("  just a reply \n", marker)
		if got != "just a reply" {
			t.Errorf("Expected trimmed body, got %q", got)
		}
	})

	t.Run("empty marker", func(t *testing.T) {
		got := TruncateQuoted(" body ", "")
		if got != "body" {
			t.Errorf("Expected trimmed body, got %q", got)
		}
	})
}
