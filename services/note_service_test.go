package services

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/dentalflow/dentalflow-api/workflow"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubProfiles struct {
	info  *Auth0UserInfo
	err   error
	calls int
}

func (s *stubProfiles) GetUserInfo(ctx context.Context, accessToken string) (*Auth0UserInfo, error) {
	s.calls++
	return s.info, s.err
}

func TestNoteService_CreateAndList(t *testing.T) {
	f := newFixture(t)
	order := f.submitOne(t, NewOrderService(f.db, nil, nil), "11")
	notes := NewNoteService(f.db, f.hub, nil)

	first, err := notes.Create(context.Background(), f.staff(), order.ID, "  Color A2 confirmado  ", "")
	require.NoError(t, err)
	assert.Equal(t, "Color A2 confirmado", first.Note)
	assert.Equal(t, "Ana Técnica", first.AuthorName)

	f.advance(time.Minute)
	_, err = notes.Create(context.Background(), f.clinicUser(), order.ID, "Gracias", "")
	require.NoError(t, err)

	list, err := notes.List(context.Background(), f.clinicUser(), order.ID)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, first.ID, list[0].ID, "notes are listed oldest first")
	assert.Equal(t, "dra.mendez@sonrisas.gt", list[1].AuthorName, "falls back to the email")
}

func TestNoteService_AuthorNameFromProfile(t *testing.T) {
	f := newFixture(t)
	order := f.submitOne(t, NewOrderService(f.db, nil, nil), "11")

	profiles := &stubProfiles{info: &Auth0UserInfo{Name: "Dra. Laura Méndez"}}
	notes := NewNoteService(f.db, nil, profiles)
	note, err := notes.Create(context.Background(), f.clinicUser(), order.ID, "Urgente", "token-123")
	require.NoError(t, err)
	assert.Equal(t, "Dra. Laura Méndez", note.AuthorName)
	assert.Equal(t, 1, profiles.calls)

	profiles.err = errors.New("userinfo unavailable")
	note, err = notes.Create(context.Background(), f.clinicUser(), order.ID, "Otra nota", "token-123")
	require.NoError(t, err, "a profile lookup failure does not block the note")
	assert.Equal(t, "dra.mendez@sonrisas.gt", note.AuthorName)
}

func TestNoteService_Validation(t *testing.T) {
	f := newFixture(t)
	order := f.submitOne(t, NewOrderService(f.db, nil, nil), "11")
	notes := NewNoteService(f.db, nil, nil)

	var vErr *workflow.ValidationError
	_, err := notes.Create(context.Background(), f.staff(), order.ID, "   ", "")
	assert.ErrorAs(t, err, &vErr)
	_, err = notes.Create(context.Background(), f.staff(), order.ID, strings.Repeat("x", MaxNoteLength+1), "")
	assert.ErrorAs(t, err, &vErr)

	var nf *workflow.NotFoundError
	_, err = notes.Create(context.Background(), f.staff(), "missing", "hola", "")
	assert.ErrorAs(t, err, &nf)
}

func TestNoteService_DeleteOnlyByAuthor(t *testing.T) {
	f := newFixture(t)
	order := f.submitOne(t, NewOrderService(f.db, nil, nil), "11")
	notes := NewNoteService(f.db, nil, nil)

	note, err := notes.Create(context.Background(), f.clinicUser(), order.ID, "Revisar oclusión", "")
	require.NoError(t, err)

	err = notes.Delete(context.Background(), f.admin(), note.ID)
	var fErr *workflow.ForbiddenError
	assert.ErrorAs(t, err, &fErr)

	require.NoError(t, notes.Delete(context.Background(), f.clinicUser(), note.ID))

	list, err := notes.List(context.Background(), f.staff(), order.ID)
	require.NoError(t, err)
	assert.Empty(t, list)
}
