package config

import "strings"

// NotifyEvent enumerates run lifecycle points that can trigger a notification.
// The set mirrors the scheduler's mail policy: job begin, job end, job fail.
type NotifyEvent string

const (
	NotifyOnBegin NotifyEvent = "begin"
	NotifyOnEnd   NotifyEvent = "end"
	NotifyOnFail  NotifyEvent = "fail"
)

// NormalizeNotifyEvent converts arbitrary user input (case-insensitive) into a typed event, returning empty string for unknown.
func NormalizeNotifyEvent(raw string) NotifyEvent {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case string(NotifyOnBegin):
		return NotifyOnBegin
	case string(NotifyOnEnd):
		return NotifyOnEnd
	case string(NotifyOnFail):
		return NotifyOnFail
	default:
		return ""
	}
}

// NotifiesOn reports whether the configured policy includes the given event.
func (n NotifyConfig) NotifiesOn(event NotifyEvent) bool {
	for _, raw := range n.On {
		if NormalizeNotifyEvent(raw) == event {
			return true
		}
	}
	return false
}

// Valid mail-type values accepted by the scheduler directive.
const (
	MailTypeBegin = "BEGIN"
	MailTypeEnd   = "END"
	MailTypeFail  = "FAIL"
	MailTypeAll   = "ALL"
	MailTypeNone  = "NONE"
)

// NormalizeMailType canonicalizes a mail-type entry to the scheduler's
// uppercase spelling, returning empty string for unknown values.
func NormalizeMailType(raw string) string {
	switch strings.ToUpper(strings.TrimSpace(raw)) {
	case MailTypeBegin:
		return MailTypeBegin
	case MailTypeEnd:
		return MailTypeEnd
	case MailTypeFail:
		return MailTypeFail
	case MailTypeAll:
		return MailTypeAll
	case MailTypeNone:
		return MailTypeNone
	default:
		return ""
	}
}
