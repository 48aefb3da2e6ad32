// Package audio turns a customer's inbound audio into turn boundaries.
//
// The pieces compose in one direction:
//
//  1. A NoiseFilter cleans each Frame read from the SpeechChannel.
//  2. A VADAnalyzer, minted per session from a warm VADModel, tracks voice
//     activity on the audio clock.
//  3. The TurnCoordinator combines VAD states, streaming transcripts and an
//     EndOfTurnModel to decide when the customer has finished, and uses an
//     InterruptionHandler to decide when they are talking over the agent.
//
// # Usage Example
//
//	model, _ := audio.LoadSimpleVADModel(audio.DefaultVADParams())
//	vad, _ := model.NewAnalyzer()
//	coord, _ := audio.NewTurnCoordinator(audio.DefaultTurnConfig(), vad, audio.HeuristicEOTModel{}, log)
//
//	go coord.Run(ctx, frames, transcripts)
//	for ev := range coord.Events() {
//	    switch ev.Kind {
//	    case audio.UtteranceEnd:
//	        // customer finished: ev.Transcript
//	    case audio.BargeIn:
//	        // stop agent speech
//	    }
//	}
package audio
