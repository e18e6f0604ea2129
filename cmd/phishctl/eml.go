package main

import (
	"io"
	"os"
	"strings"

	_ "github.com/emersion/go-message/charset"
	"github.com/emersion/go-message/mail"

	"github.com/phishguard/phishguard/internal/core"
)

// readEmailRecord parses an RFC822 message into the normalized record the
// analysis pipeline expects.
func readEmailRecord(path string) (*core.EmailRecord, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	reader, err := mail.CreateReader(file)
	if err != nil {
		return nil, err
	}

	record := &core.EmailRecord{Provider: "eml"}

	if subject, err := reader.Header.Subject(); err == nil {
		record.Subject = subject
	}
	if fromList, err := reader.Header.AddressList("From"); err == nil && len(fromList) > 0 {
		record.Sender = fromList[0].Address
		record.SenderName = fromList[0].Name
	}
	if toList, err := reader.Header.AddressList("To"); err == nil && len(toList) > 0 {
		record.Recipient = toList[0].Address
	}
	if date, err := reader.Header.Date(); err == nil {
		record.Timestamp = date
	}
	record.IsReply = strings.HasPrefix(strings.ToLower(record.Subject), "re:")

	// Header-level auth results, when an upstream MTA recorded them.
	authResults := strings.ToLower(reader.Header.Get("Authentication-Results"))
	record.SPFPass = strings.Contains(authResults, "spf=pass")
	record.DKIMPass = strings.Contains(authResults, "dkim=pass")

	for {
		part, err := reader.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			return record, err
		}

		switch header := part.Header.(type) {
		case *mail.InlineHeader:
			mediaType, _, _ := header.ContentType()
			body, err := io.ReadAll(part.Body)
			if err != nil {
				continue
			}
			switch {
			case strings.HasPrefix(mediaType, "text/html"):
				record.BodyHTML += string(body)
			case strings.HasPrefix(mediaType, "text/plain") || mediaType == "":
				record.BodyText += string(body)
			}
		case *mail.AttachmentHeader:
			filename, _ := header.Filename()
			if strings.TrimSpace(filename) == "" {
				filename = "attachment"
			}
			record.Attachments = append(record.Attachments, filename)
		}
	}

	return record, nil
}
