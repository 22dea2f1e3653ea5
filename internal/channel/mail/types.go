package mail

import (
	"errors"
	"fmt"
	"regexp"
	"time"
)

// Envelope holds the parsed envelope data from an IMAP message.
type Envelope struct {
	MessageID string
	Subject   string
	From      string
	FromAddr  string
	Date      time.Time
	UID       uint32
}

// Message holds the full parsed content of a mail message.
type Message struct {
	Envelope    Envelope
	TextBody    string
	HTMLBody    string
	Attachments []Attachment
}

// Attachment holds metadata about a message attachment.
type Attachment struct {
	Filename string
	Size     int64
	MIMEType string
}

// AuthError indicates the mailbox rejected our credentials. The mail
// channel treats it as the link having expired.
type AuthError struct {
	Username string
	Message  string
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("mail auth error (%s): %s", e.Username, e.Message)
}

// IsAuthError reports whether err (or any error in its chain) is an AuthError.
func IsAuthError(err error) bool {
	var authErr *AuthError
	return errors.As(err, &authErr)
}

var urlPattern = regexp.MustCompile(`https?://[^\s/$.?#][^\s"'<>]*`)

// DetectURLs returns every http(s) URL found in the message bodies.
func (m Message) DetectURLs() []string {
	urls := []string{}
	urls = append(urls, urlPattern.FindAllString(m.TextBody, -1)...)
	urls = append(urls, urlPattern.FindAllString(m.HTMLBody, -1)...)
	return urls
}
