// Package worker runs the analysis pipeline behind a message-passing
// boundary and drives it from the caller side.
//
// The [Host] owns the pipeline state and answers one [Message] per request
// in an exhaustive switch over [Kind]. A [Transport] carries encoded
// messages between the Host and a [Client]; [NewLocal] runs the Host on a
// goroutine and [NewStream] speaks length-prefixed msgpack frames over any
// byte stream. The Client enforces at most one analysis request in flight,
// throttles submissions, times out unanswered requests, fences late results,
// and republishes everything into the state store and event bus.
package worker
