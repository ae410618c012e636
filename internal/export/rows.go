package export

import (
	"time"

	"prompt-comparator/internal/models"
)

// Row is one user turn with both sides' responses.
type Row struct {
	Timestamp time.Time
	User      string
	ResponseA string
	ResponseB string
}

// Rows pairs the histories by index. The user text at i comes from A, or from B when A's
// slot is not a user turn; responses are the assistant turns at i+1. Histories that drift
// apart (a failed send on one side only) can misalign; that is accepted.
func Rows(a, b []models.Message, ts time.Time) []Row {
	n := max(len(a), len(b))

	var rows []Row
	for i := 0; i < n; i++ {
		user, ok := userAt(a, i)
		if !ok {
			user, ok = userAt(b, i)
		}
		if !ok {
			continue
		}
		rows = append(rows, Row{
			Timestamp: ts,
			User:      user,
			ResponseA: assistantAt(a, i+1),
			ResponseB: assistantAt(b, i+1),
		})
	}
	return rows
}

// Rows of the transcript, stamped with its timestamp.
func (t Transcript) Rows() []Row {
	return Rows(t.A.Messages, t.B.Messages, t.Timestamp)
}

// Header returns the column titles shared by the tabular formats.
func (t Transcript) Header() []string {
	return []string{"Timestamp", "User Message", labelOr(t.A.Label, "Prompt A") + " Response", labelOr(t.B.Label, "Prompt B") + " Response"}
}

func (r Row) fields() []string {
	return []string{r.Timestamp.UTC().Format(time.RFC3339), r.User, r.ResponseA, r.ResponseB}
}

func userAt(h []models.Message, i int) (string, bool) {
	if i < len(h) && h[i].Role == models.RoleUser {
		return h[i].Content, true
	}
	return "", false
}

func assistantAt(h []models.Message, i int) string {
	if i < len(h) && h[i].Role == models.RoleAssistant {
		return h[i].Content
	}
	return ""
}

func labelOr(label, fallback string) string {
	if label == "" {
		return fallback
	}
	return label
}
