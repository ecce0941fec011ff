// Package logx is padron's structured logger: a value-type wrapper over
// zerolog with a readable console sink, an optional JSON file sink and an
// optional, rate-limited Telegram sink that reports problems to the admin
// chat. Every sink masks the configured secrets.
package logx
