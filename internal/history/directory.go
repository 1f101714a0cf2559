package history

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/sweeney/asterisk-proxy/internal/model"
)

// Directory resolves calling numbers against the phonebook and the notes
// operators left about callers.
type Directory struct {
	db     querier
	logger *zap.Logger
}

func NewDirectory(db querier, logger *zap.Logger) *Directory {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Directory{db: db, logger: logger}
}

const contactsSQL = `
SELECT id, name, COALESCE(company, ''), number, COALESCE(owner, '')
FROM phonebook
WHERE number = $1 OR mobile = $1
ORDER BY name`

// Expired notes are hidden.
const notesSQL = `
SELECT id, creator, text, public, reservation, creation
FROM caller_notes
WHERE number = $1
  AND (expiration IS NULL OR expiration > now())
ORDER BY creation DESC`

// Lookup returns everything known about a number. Unknown numbers yield an
// identity carrying only the number.
func (d *Directory) Lookup(ctx context.Context, number string) (model.CallerIdentity, error) {
	ci := model.CallerIdentity{Number: number}

	contacts, err := d.contacts(ctx, number)
	if err != nil {
		return ci, err
	}
	notes, err := d.notes(ctx, number)
	if err != nil {
		return ci, err
	}
	ci.Contacts, ci.Notes = contacts, notes

	d.logger.Debug("caller identity resolved",
		zap.String("number", number),
		zap.Int("contacts", len(contacts)),
		zap.Int("notes", len(notes)))
	return ci, nil
}

func (d *Directory) contacts(ctx context.Context, number string) ([]model.Contact, error) {
	rows, err := d.db.Query(ctx, contactsSQL, number)
	if err != nil {
		return nil, fmt.Errorf("querying phonebook: %w", err)
	}
	defer rows.Close()

	var out []model.Contact
	for rows.Next() {
		var c model.Contact
		if err := rows.Scan(&c.ID, &c.Name, &c.Company, &c.Number, &c.Owner); err != nil {
			return nil, fmt.Errorf("scanning phonebook: %w", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading phonebook: %w", err)
	}
	return out, nil
}

func (d *Directory) notes(ctx context.Context, number string) ([]model.CallerNote, error) {
	rows, err := d.db.Query(ctx, notesSQL, number)
	if err != nil {
		return nil, fmt.Errorf("querying caller notes: %w", err)
	}
	defer rows.Close()

	var out []model.CallerNote
	for rows.Next() {
		var n model.CallerNote
		if err := rows.Scan(&n.ID, &n.Creator, &n.Text, &n.Public, &n.Reservation, &n.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning caller notes: %w", err)
		}
		out = append(out, n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading caller notes: %w", err)
	}
	return out, nil
}
