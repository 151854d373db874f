package mailer

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"

	"backoffice-service/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	gopkgmail "gopkg.in/gomail.v2"
)

type fakeDialer struct {
	sent    []*gopkgmail.Message
	sendErr error
	dialErr error
	closed  bool
}

func (d *fakeDialer) Dial() (gopkgmail.SendCloser, error) {
	if d.dialErr != nil {
		return nil, d.dialErr
	}
	return d, nil
}

func (d *fakeDialer) DialAndSend(m ...*gopkgmail.Message) error {
	if d.sendErr != nil {
		return d.sendErr
	}
	d.sent = append(d.sent, m...)
	return nil
}

func (d *fakeDialer) Send(string, []string, io.WriterTo) error { return nil }

func (d *fakeDialer) Close() error {
	d.closed = true
	return nil
}

func TestSend(t *testing.T) {
	d := &fakeDialer{}
	s := NewSenderWithDialer(d, "no-reply@example.com")

	msg := &models.EmailMessage{
		BaseEvent: models.NewBaseEvent(models.EventTypeEmailRequested),
		To:        "ana@example.com",
		Subject:   "Password reset code",
		Body:      "Your password reset code: abc123\n",
	}
	require.NoError(t, s.Send(context.Background(), msg))
	require.Len(t, d.sent, 1)

	assert.Equal(t, []string{"ana@example.com"}, d.sent[0].GetHeader("To"))
	assert.Equal(t, []string{"no-reply@example.com"}, d.sent[0].GetHeader("From"))

	var buf bytes.Buffer
	_, err := d.sent[0].WriteTo(&buf)
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "abc123")
}

func TestSendFailures(t *testing.T) {
	d := &fakeDialer{sendErr: errors.New("535 auth failed")}
	s := NewSenderWithDialer(d, "no-reply@example.com")

	err := s.Send(context.Background(), &models.EmailMessage{To: "ana@example.com"})
	assert.ErrorContains(t, err, "535 auth failed")

	err = s.Send(context.Background(), &models.EmailMessage{})
	assert.ErrorContains(t, err, "no recipient")
}

func TestVerify(t *testing.T) {
	d := &fakeDialer{}
	require.NoError(t, NewSenderWithDialer(d, "x@example.com").Verify())
	assert.True(t, d.closed)

	d = &fakeDialer{dialErr: errors.New("connection refused")}
	assert.ErrorContains(t, NewSenderWithDialer(d, "x@example.com").Verify(), "connection refused")
}
