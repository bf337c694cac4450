package bus

import (
	"context"
	"testing"
	"time"

	"signalengine/internal/model"
)

func TestFanOut_BroadcastsToAll(t *testing.T) {
	fo := New(10)
	out1 := fo.Subscribe("pipeline")
	out2 := fo.Subscribe("sqlite")

	input := make(chan model.RawBar, 10)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go fo.Run(ctx, input)

	input <- model.RawBar{OpenTime: 1709251200000, Open: 100, High: 110, Low: 90, Close: 105, Volume: 3}

	for name, out := range map[string]<-chan model.RawBar{"pipeline": out1, "sqlite": out2} {
		select {
		case b := <-out:
			if b.OpenTime != 1709251200000 || b.Close != 105 {
				t.Errorf("%s: unexpected bar %+v", name, b)
			}
		case <-time.After(time.Second):
			t.Fatalf("%s: timed out waiting for bar", name)
		}
	}
}

func TestFanOut_DropsForSlowSubscriber(t *testing.T) {
	fo := New(1)
	fast := fo.Subscribe("fast")
	fo.Subscribe("slow") // never read

	drops := make(chan string, 10)
	fo.OnDrop = func(s string) { drops <- s }

	input := make(chan model.RawBar)
	done := make(chan struct{})
	go func() {
		fo.Run(context.Background(), input)
		close(done)
	}()

	for i := int64(1); i <= 3; i++ {
		input <- model.RawBar{OpenTime: i}
		<-fast
	}
	close(input)
	<-done

	close(drops)
	var n int
	for s := range drops {
		if s != "slow" {
			t.Errorf("expected drops only for slow, got %s", s)
		}
		n++
	}
	if n != 2 {
		t.Errorf("expected 2 drops, got %d", n)
	}
	if _, ok := <-fast; ok {
		t.Error("expected outputs closed after input closed")
	}
}
