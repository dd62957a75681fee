package events_test

import (
	"errors"
	"testing"

	"github.com/ardanlabs/utxochain/foundation/events"
)

// Success and failure markers.
const (
	success = "\u2713"
	failed  = "\u2717"
)

func TestEvents(t *testing.T) {
	t.Log("Given the need to fan out node events to websocket clients.")
	{
		evts := events.New()

		ch1 := evts.Acquire("one")
		ch2 := evts.Acquire("two")

		if evts.Acquire("one") != ch1 {
			t.Fatalf("\t%s\tShould get the same channel for the same id.", failed)
		}
		t.Logf("\t%s\tShould get the same channel for the same id.", success)

		evts.Send("chain: addBlock: blk[2]")

		for _, ch := range []chan string{ch1, ch2} {
			if msg := <-ch; msg != "chain: addBlock: blk[2]" {
				t.Fatalf("\t%s\tShould receive the event, got %q.", failed, msg)
			}
		}
		t.Logf("\t%s\tShould receive the event on every channel.", success)

		if err := evts.Release("one"); err != nil {
			t.Fatalf("\t%s\tShould be able to release the channel: %v", failed, err)
		}
		if _, open := <-ch1; open {
			t.Fatalf("\t%s\tShould close the released channel.", failed)
		}
		if err := evts.Release("one"); !errors.Is(err, events.ErrNotAcquired) {
			t.Fatalf("\t%s\tShould not release the channel twice.", failed)
		}
		t.Logf("\t%s\tShould close the released channel once.", success)

		for i := 0; i <= 100; i++ {
			evts.Send("worker: sync")
		}
		if evts.Dropped() != 1 {
			t.Fatalf("\t%s\tShould drop the line a full client can't take, got %d.", failed, evts.Dropped())
		}
		t.Logf("\t%s\tShould drop the line a full client can't take.", success)

		evts.Shutdown()

		// Lines already buffered are still delivered before the close.
		var n int
		for range ch2 {
			n++
		}
		if n != 100 || evts.Count() != 0 {
			t.Fatalf("\t%s\tShould close every channel on shutdown.", failed)
		}
		t.Logf("\t%s\tShould close every channel on shutdown.", success)
	}
}
