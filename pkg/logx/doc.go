// Package logx is the bot's logging layer: a thin Logger over zerolog with
// field helpers, a readable console writer, an optional JSON file, and an
// optional Discord channel sink filtered by level and throttled per second.
// Service.Apply swaps sinks at runtime when the config reloads.
package logx
