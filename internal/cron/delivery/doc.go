// Package delivery routes finished cron runs to their configured channel:
// an outbound webhook, the agent's system-event queue, an announce channel
// such as Telegram, or nowhere.
//
// Delivery is best effort. Failures are logged as *DeliveryError and
// dropped; they never feed back into scheduling.
package delivery
