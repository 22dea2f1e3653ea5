package model

// Channel identifies one monitored message source.
type Channel string

const (
	ChannelSMS   Channel = "sms"
	ChannelGmail Channel = "gmail"
)

// Channels lists every channel in the order they are started.
var Channels = []Channel{ChannelSMS, ChannelGmail}

// MonitoringIntent is the user's desired on/off state for each channel.
// It says nothing about whether the platform listener is actually running.
type MonitoringIntent struct {
	SMSEnabled   bool `json:"sms_enabled"`
	GmailEnabled bool `json:"gmail_enabled"`
}

// Enabled reports the intent for a single channel.
func (i MonitoringIntent) Enabled(ch Channel) bool {
	switch ch {
	case ChannelSMS:
		return i.SMSEnabled
	case ChannelGmail:
		return i.GmailEnabled
	default:
		return false
	}
}

// Status derives the three-value status shown to the UI.
func (i MonitoringIntent) Status() MonitoringStatus {
	return MonitoringStatus{
		IsActive: i.SMSEnabled || i.GmailEnabled,
		SMS:      i.SMSEnabled,
		Gmail:    i.GmailEnabled,
	}
}

// MonitoringStatus is the intent as reported back to callers.
// IsActive is computed on read and never stored.
type MonitoringStatus struct {
	IsActive bool `json:"isActive"`
	SMS      bool `json:"sms"`
	Gmail    bool `json:"gmail"`
}

// Intent converts the status back into the stored form.
func (s MonitoringStatus) Intent() MonitoringIntent {
	return MonitoringIntent{SMSEnabled: s.SMS, GmailEnabled: s.Gmail}
}
