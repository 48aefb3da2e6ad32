// Package stt defines the streaming speech-to-text contract a voice session
// depends on.
//
// A session opens one Stream, feeds it every inbound audio Frame and reads
// interim and final Transcripts back. When a provider fails the stream's
// Transcripts channel closes and Err reports the cause; the session decides
// whether to reopen it. Concrete providers live outside this package.
package stt
