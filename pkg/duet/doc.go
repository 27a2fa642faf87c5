// Package duet runs a two-party spoken conversation between two realtime
// model sessions.
//
// Each Participant owns a Connection: one realtime session plus a receive
// loop that records every audio delta and signals turn completion. The
// Coordinator connects both participants, lets the therapist (RoleA) open
// with an unprompted turn, then feeds each turn's audio to the other
// participant until a turn yields no audio, a turn fails, the exchange
// limit is reached or the context is cancelled:
//
//	rec, err := recorder.New(ctx, store, time.Now().Format(recorder.StampLayout))
//	if err != nil {
//	    return err
//	}
//	client := openairealtime.NewClient(apiKey)
//	sum, err := duet.NewCoordinator(client, rec, duet.DefaultConfig()).Run(ctx)
//
// Run always finalizes the recorder before returning.
package duet
