// Package telegram is a send-only Telegram client used to announce cron
// run outcomes to a chat or forum topic.
package telegram
