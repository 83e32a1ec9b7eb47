// internal/hunt/pools.go
package hunt

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"strings"

	"github.com/jason-s-yu/pikit/internal/apperr"
)

// CocoListName names the built-in pool of object classes the detector is trained on.
const CocoListName = "coco"

// CocoObjects are the 80 COCO class labels.
var CocoObjects = []string{
	"person", "bicycle", "car", "motorcycle", "airplane", "bus", "train", "truck",
	"boat", "traffic light", "fire hydrant", "stop sign", "parking meter", "bench",
	"bird", "cat", "dog", "horse", "sheep", "cow", "elephant", "bear", "zebra", "giraffe",
	"backpack", "umbrella", "handbag", "tie", "suitcase", "frisbee", "skis", "snowboard",
	"sports ball", "kite", "baseball bat", "baseball glove", "skateboard", "surfboard",
	"tennis racket", "bottle", "wine glass", "cup", "fork", "knife", "spoon", "bowl",
	"banana", "apple", "sandwich", "orange", "broccoli", "carrot", "hot dog", "pizza",
	"donut", "cake", "chair", "couch", "potted plant", "bed", "dining table", "toilet",
	"tv", "laptop", "mouse", "remote", "keyboard", "cell phone", "microwave", "oven",
	"toaster", "sink", "refrigerator", "book", "clock", "vase", "scissors", "teddy bear",
	"hair drier", "toothbrush",
}

// StaticPools serves fixed, in-process object lists.
type StaticPools map[string][]string

// DefaultPools returns the built-in pools.
func DefaultPools() StaticPools {
	return StaticPools{CocoListName: CocoObjects}
}

func (p StaticPools) ObjectsForList(_ context.Context, name string) ([]string, error) {
	objs, ok := p[name]
	if !ok {
		return nil, fmt.Errorf("object list %q: %w", name, apperr.ErrNotFound)
	}
	return append([]string(nil), objs...), nil
}

// ChainPools asks each provider in turn and returns the first pool found.
type ChainPools []PoolProvider

func (c ChainPools) ObjectsForList(ctx context.Context, name string) ([]string, error) {
	for _, p := range c {
		objs, err := p.ObjectsForList(ctx, name)
		if err == nil {
			return objs, nil
		}
		if !errors.Is(err, apperr.ErrNotFound) {
			return nil, err
		}
	}
	return nil, fmt.Errorf("object list %q: %w", name, apperr.ErrNotFound)
}

// distinctObjects trims names and drops blanks and repeats, keeping first-seen order.
// Names differing only in case are repeats, since matching ignores case.
func distinctObjects(pool []string) []string {
	seen := make(map[string]bool, len(pool))
	out := make([]string, 0, len(pool))
	for _, name := range pool {
		name = strings.TrimSpace(name)
		key := strings.ToLower(name)
		if name == "" || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, name)
	}
	return out
}

// sampleObjects draws n distinct names uniformly without replacement.
func sampleObjects(pool []string, n int) ([]string, error) {
	distinct := distinctObjects(pool)
	if len(distinct) < n {
		return nil, fmt.Errorf("need %d distinct objects, pool has %d: %w", n, len(distinct), apperr.ErrPoolExhausted)
	}
	rand.Shuffle(len(distinct), func(i, j int) {
		distinct[i], distinct[j] = distinct[j], distinct[i]
	})
	return distinct[:n], nil
}
