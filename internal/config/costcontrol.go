// Policy and pricing configuration re-exports.
//
// DESIGN: The throttle policy lives next to the session state that enforces it,
// pricing lives in internal/costcontrol. This file re-exports both types for
// use by the main Config struct.
package config

import (
	"github.com/mandyss10/Sentinel/internal/costcontrol"
	"github.com/mandyss10/Sentinel/internal/session"
)

// ThrottlePolicy is an alias for session.ThrottlePolicy.
type ThrottlePolicy = session.ThrottlePolicy

// PricingConfig is an alias for costcontrol.PricingConfig.
type PricingConfig = costcontrol.PricingConfig
