// Package openairealtime provides a WebSocket client for OpenAI's Realtime API.
//
// The client speaks the subset of the protocol needed for manual turn
// taking: server VAD is disabled, the caller adds user audio items and
// requests responses explicitly, then collects the streamed audio.
//
//	client := openairealtime.NewClient(apiKey)
//	session, err := client.Connect(ctx, &openairealtime.ConnectConfig{
//	    Model: openairealtime.ModelGPT4oRealtimePreview,
//	})
//	if err != nil {
//	    return err
//	}
//	defer session.Close()
//
//	err = session.UpdateSession(&openairealtime.SessionConfig{
//	    Voice:                 openairealtime.VoiceVerse,
//	    Instructions:          "You are a helpful assistant.",
//	    TurnDetectionDisabled: true,
//	})
//
//	err = session.AddUserAudio(pcm)
//	err = session.CreateResponse(&openairealtime.ResponseCreateOptions{
//	    Modalities: []string{openairealtime.ModalityText, openairealtime.ModalityAudio},
//	})
//
//	for event, err := range session.Events() {
//	    if err != nil {
//	        var de *openairealtime.DecodeError
//	        if errors.As(err, &de) {
//	            continue
//	        }
//	        return err
//	    }
//	    switch event.Type {
//	    case openairealtime.EventTypeResponseAudioDelta:
//	        play(event.Audio)
//	    case openairealtime.EventTypeResponseDone:
//	        return nil
//	    }
//	}
package openairealtime
