// Package tts turns agent replies into paced speech.
//
// A StreamingService synthesizes one piece of text into PCM chunks. The
// Pacer splits a reply into sentences with a SentenceTokenizer, synthesizes
// them in order and writes the audio to an AudioSink no faster than it
// would play, so cancelling speech mid-reply leaves little audio queued on
// the far side.
//
// # Usage
//
//	pacer := tts.NewPacer(service, tts.DefaultPacerConfig(), log)
//	report, err := pacer.Speak(ctx, "Hi! What can I get you?", channel, nil)
package tts
