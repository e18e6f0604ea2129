package core

import (
	"regexp"
	"strings"

	"github.com/k3a/html2text"
)

// Fixed lexicons the extractor matches against. These mirror what the
// classification model was trained on, so changing them silently skews
// remote predictions.
var (
	suspiciousTLDs       = []string{".ru", ".cn", ".tk", ".xyz"}
	urgentKeywords       = []string{"urgent", "immediately", "action required", "important"}
	financialKeywords    = []string{"invoice", "payment", "bank", "account", "password"}
	shortenerDomains     = []string{"bit.ly", "tinyurl", "goo.gl"}
	suspiciousExtensions = []string{".exe", ".scr", ".zip", ".rar", ".7z"}
)

var (
	urlPattern        = regexp.MustCompile(`https?://[^\s"'<>]+`)
	imgTagPattern     = regexp.MustCompile(`(?i)<img\b`)
	hiddenTextPattern = regexp.MustCompile(`(?i)font-size:\s*0|color:\s*#fff\b`)
	suspiciousAttach  = regexp.MustCompile(`(?i)\.(exe|scr|zip|rar|7z)\b`)
)

// htmlToTextRatioCap bounds outlier influence of tag-dense markup.
const htmlToTextRatioCap = 10.0

// ExtractFeatures computes a FeatureVector from an EmailRecord. It is a pure
// function: no side effects, no failure mode, same input always yields the
// same output.
func ExtractFeatures(record *EmailRecord) *FeatureVector {
	bodyText := record.BodyText
	if bodyText == "" && record.BodyHTML != "" {
		bodyText = html2text.HTML2Text(record.BodyHTML)
	}

	html := strings.ToLower(record.BodyHTML)
	text := strings.ToLower(bodyText)
	subject := strings.ToLower(record.Subject)
	searchable := subject + " " + text

	urls := record.URLs
	if len(urls) == 0 {
		urls = urlPattern.FindAllString(html+" "+text, -1)
	}

	senderDomain := domainOf(record.Sender)

	external := 0
	shortened := false
	suspiciousTLD := false
	for _, u := range urls {
		lower := strings.ToLower(u)
		host := hostOf(lower)
		if senderDomain == "" || !strings.HasSuffix(host, senderDomain) {
			external++
		}
		for _, s := range shortenerDomains {
			if strings.Contains(lower, s) {
				shortened = true
			}
		}
		for _, tld := range suspiciousTLDs {
			if strings.HasSuffix(host, tld) {
				suspiciousTLD = true
			}
		}
	}

	suspiciousAttachment := suspiciousAttach.MatchString(text)
	for _, name := range record.Attachments {
		lower := strings.ToLower(name)
		for _, ext := range suspiciousExtensions {
			if strings.HasSuffix(lower, ext) {
				suspiciousAttachment = true
			}
		}
	}

	ratio := 0.0
	if len(text) > 0 {
		ratio = float64(strings.Count(html, "<")) / float64(len(text))
		if ratio > htmlToTextRatioCap {
			ratio = htmlToTextRatioCap
		}
	}

	timeOfDay := 12
	if !record.Timestamp.IsZero() {
		timeOfDay = record.Timestamp.Hour()
	}

	return &FeatureVector{
		HasSuspiciousTLD:         suspiciousTLD,
		HasDisplayNameMismatch:   displayNameMismatch(record.SenderName, senderDomain),
		SubjectLength:            len(record.Subject),
		BodyLength:               len(bodyText),
		HasUrgentKeywords:        containsAny(searchable, urgentKeywords),
		HasFinancialKeywords:     containsAny(searchable, financialKeywords),
		NumLinks:                 len(urls),
		NumExternalLinks:         external,
		HasShortenedURLs:         shortened,
		HasSuspiciousAttachments: suspiciousAttachment,
		HTMLToTextRatio:          ratio,
		HasHiddenText:            hiddenTextPattern.MatchString(html),
		NumImages:                len(imgTagPattern.FindAllString(html, -1)),
		IsReply:                  record.IsReply || strings.HasPrefix(subject, "re:"),
		TimeOfDay:                timeOfDay,
		HasSPFPass:               record.SPFPass,
		HasDKIMPass:              record.DKIMPass,
		IsUnread:                 record.IsUnread,
		Provider:                 record.Provider,
	}
}

func containsAny(text string, keywords []string) bool {
	for _, k := range keywords {
		if strings.Contains(text, k) {
			return true
		}
	}
	return false
}

// domainOf extracts the lowercase domain part of an email address.
func domainOf(address string) string {
	at := strings.LastIndex(address, "@")
	if at < 0 || at == len(address)-1 {
		return ""
	}
	return strings.ToLower(address[at+1:])
}

// hostOf extracts the host part of a URL without pulling in net/url parse
// errors for the malformed links phishing mail tends to carry.
func hostOf(rawURL string) string {
	host := rawURL
	if i := strings.Index(host, "://"); i >= 0 {
		host = host[i+3:]
	}
	for _, sep := range []string{"/", "?", "#", ":"} {
		if i := strings.Index(host, sep); i >= 0 {
			host = host[:i]
		}
	}
	return host
}

// displayNameMismatch reports whether a non-empty display name carries no
// trace of the sender's actual domain, a common spoofing pattern.
func displayNameMismatch(name, domain string) bool {
	if name == "" || domain == "" {
		return false
	}
	lower := strings.ToLower(name)
	if strings.Contains(lower, domain) {
		return false
	}
	// Also accept the bare organization label ("PayPal" for paypal.com).
	if label := strings.SplitN(domain, ".", 2)[0]; label != "" && strings.Contains(lower, label) {
		return false
	}
	return true
}
