// Package coord issues, tracks and validates concurrent network operations
// for the dashboard.
//
// Registry hands out generations per owner so late responses can be told
// apart from current ones. Navigator owns one cancellation signal per
// navigation target. Guard serialises exclusive operations by key and is
// the single place where failures become operator notifications.
// SectionCache keeps fetched panel payloads for a per-section TTL. Join runs
// independent tasks and reports each outcome separately.
//
// Every asynchronous result must pass Registry.IsCurrent before it touches
// shared state; a stale result is dropped silently.
package coord
