package app

// PublishFunc is handed to every parser invocation; parsers call it once
// per emitted frame. It must never block (it forwards straight into the
// Bus, whose Publish never blocks).
type PublishFunc func(frameBytes []byte)

// ParserFunc translates one raw WebSocket (or REST-sourced) payload into
// zero or more NormalizedFrame emissions via publish, returning the
// number emitted. Parsers are pure functions over immutable
// configuration: they never throw and never mutate shared state: a
// payload missing a required field returns 0 and emits nothing.
type ParserFunc func(raw []byte, publish PublishFunc) int
