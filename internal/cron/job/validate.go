package job

import (
	"encoding/json"
	"net/url"
	"strings"

	"agentcron/internal/cron/schedule"
)

// Normalize fills defaults on a Create before validation. A delivery block
// is copied before trimming so the caller's value is left untouched.
func (c *Create) Normalize() {
	c.Name = strings.TrimSpace(c.Name)
	if c.SessionTarget == "" {
		c.SessionTarget = SessionMain
	}
	if c.WakeMode == "" {
		c.WakeMode = WakeNextHeartbeat
	}
	if c.Delivery != nil {
		d := *c.Delivery
		c.Delivery = &d
		c.Delivery.To = strings.TrimSpace(c.Delivery.To)
		c.Delivery.Channel = strings.TrimSpace(c.Delivery.Channel)
	}
}

// ValidateCreate checks a normalized Create.
func ValidateCreate(c Create) error {
	var v ValidationError
	if c.Name == "" {
		v.Addf("name required")
	}
	if c.TimeoutSeconds < 0 {
		v.Addf("timeoutSeconds must be >= 0")
	}
	validateCommon(&v, c.Schedule, c.SessionTarget, c.WakeMode, c.Payload, c.Delivery)
	return v.errOrNil()
}

// Validate checks a complete job record (after a patch has been applied).
func Validate(j Job) error {
	var v ValidationError
	if strings.TrimSpace(j.ID) == "" {
		v.Addf("id required")
	}
	if strings.TrimSpace(j.Name) == "" {
		v.Addf("name required")
	}
	if j.TimeoutSeconds < 0 {
		v.Addf("timeoutSeconds must be >= 0")
	}
	validateCommon(&v, j.Schedule, j.SessionTarget, j.WakeMode, j.Payload, j.Delivery)
	return v.errOrNil()
}

func validateCommon(v *ValidationError, s schedule.Schedule, target SessionTarget, wake WakeMode, p Payload, d *Delivery) {
	v.Add(schedule.Validate(s))

	switch target {
	case SessionMain, SessionIsolated:
	default:
		v.Addf("sessionTarget: unsupported %q (use main or isolated)", target)
	}
	switch wake {
	case WakeNextHeartbeat, WakeNow:
	default:
		v.Addf("wakeMode: unsupported %q (use next-heartbeat or now)", wake)
	}

	if len(p) == 0 {
		v.Addf("payload required")
	} else if !json.Valid(p) {
		v.Addf("payload: invalid JSON")
	} else if p.Kind() == "" {
		v.Addf("payload.kind required")
	}

	if d != nil {
		validateDelivery(v, *d)
	}
}

func validateDelivery(v *ValidationError, d Delivery) {
	switch d.Mode {
	case DeliveryWebhook:
		if d.To == "" {
			v.Addf("delivery.to required for webhook delivery")
			return
		}
		u, err := url.Parse(d.To)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			v.Addf("delivery.to: invalid webhook URL %q", d.To)
		}
	case DeliveryAnnounce:
		if d.Channel == "" {
			v.Addf("delivery.channel required for announce delivery")
		}
		if d.To == "" {
			v.Addf("delivery.to required for announce delivery")
		}
	case DeliverySystemEvent, DeliveryNone:
	case "":
		v.Addf("delivery.mode required")
	default:
		v.Addf("delivery.mode: unsupported %q", d.Mode)
	}
}

// Apply merges a patch into j and returns the result. It does not touch
// derived run-state fields.
func (p Patch) Apply(j Job) Job {
	out := j.Clone()
	if p.Name != nil {
		out.Name = strings.TrimSpace(*p.Name)
	}
	if p.Description != nil {
		out.Description = *p.Description
	}
	if p.Enabled != nil {
		out.Enabled = *p.Enabled
	}
	if p.Schedule != nil {
		out.Schedule = *p.Schedule
	}
	if p.SessionTarget != nil {
		out.SessionTarget = *p.SessionTarget
	}
	if p.WakeMode != nil {
		out.WakeMode = *p.WakeMode
	}
	if len(p.Payload) > 0 {
		out.Payload = append(Payload(nil), p.Payload...)
	}
	if p.ClearDelivery {
		out.Delivery = nil
	} else if p.Delivery != nil {
		d := *p.Delivery
		d.To = strings.TrimSpace(d.To)
		d.Channel = strings.TrimSpace(d.Channel)
		out.Delivery = &d
	}
	if p.Notify != nil {
		n := *p.Notify
		out.Notify = &n
	}
	if p.TimeoutSeconds != nil {
		out.TimeoutSeconds = *p.TimeoutSeconds
	}
	return out
}
