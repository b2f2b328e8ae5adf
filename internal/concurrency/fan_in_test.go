package concurrency

import (
	"context"
	"fmt"
	"slices"
	"testing"

	"github.com/stretchr/testify/require"
)

// produce returns a channel yielding n keys of shard, and a channel
// receiving n once the last key was taken.
func produce(shard string, n int) (<-chan string, <-chan int) {
	ch := make(chan string)
	produced := make(chan int, 1)
	go func() {
		defer close(ch)
		for i := range n {
			ch <- fmt.Sprintf("%s/%02d", shard, i)
		}
		produced <- n
	}()
	return ch, produced
}

func TestMerge(t *testing.T) {
	var chans []<-chan string
	var expected []string
	for _, shard := range []string{"s_0", "s_1", "s_2"} {
		ch, _ := produce(shard, 5)
		chans = append(chans, ch)
		for i := range 5 {
			expected = append(expected, fmt.Sprintf("%s/%02d", shard, i))
		}
	}

	var got []string
	for key := range Merge(context.Background(), chans) {
		got = append(got, key)
	}
	slices.Sort(got)
	require.Equal(t, expected, got)
}

func TestMergeWithoutChannels(t *testing.T) {
	_, ok := <-Merge[string](context.Background(), nil)
	require.False(t, ok)
}

func TestMergeCancelledDrainsProducers(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var chans []<-chan string
	var done []<-chan int
	for _, shard := range []string{"s_0", "s_1"} {
		ch, produced := produce(shard, 100)
		chans = append(chans, ch)
		done = append(done, produced)
	}

	out := Merge(ctx, chans)
	for range out {
	}
	// unbuffered producers only finish when every value was taken
	for _, produced := range done {
		require.Equal(t, 100, <-produced)
	}
}
