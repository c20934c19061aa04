// Copyright 2025 The Kubernetes Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package controllers

import (
	"crypto/sha256"
	"encoding/binary"
	"math"
	"sort"
)

// HRWScore computes the Rendezvous/HRW score for an (image, node) pair:
// the first 8 bytes, big-endian, of SHA-256(image || 0x00 || node).
//
// This must stay bit-for-bit stable: client-side diagnostic tools
// (locality_check.py in the operator's companion scripts) reproduce the same
// digest and depend on identical results.
func HRWScore(image, node string) uint64 {
	h := sha256.New()
	h.Write([]byte(image))
	h.Write([]byte{0x00})
	h.Write([]byte(node))
	digest := h.Sum(nil)
	return binary.BigEndian.Uint64(digest[:8])
}

// PreferredNodeCount returns k = max(1, ceil(replicas * spreadFactor)).
func PreferredNodeCount(replicas int32, spreadFactor float64) int {
	if spreadFactor <= 0 {
		spreadFactor = 1
	}
	k := int(math.Ceil(float64(replicas) * spreadFactor))
	if k < 1 {
		k = 1
	}
	return k
}

// TopKNodes ranks nodes by descending HRWScore(image, node), with an
// alphabetical tie-break on node name, and returns the top k names.
func TopKNodes(image string, nodes []string, k int) []string {
	if len(nodes) == 0 || k <= 0 {
		return nil
	}
	if k > len(nodes) {
		k = len(nodes)
	}

	type scoredNode struct {
		name  string
		score uint64
	}
	scored := make([]scoredNode, len(nodes))
	for i, n := range nodes {
		scored[i] = scoredNode{name: n, score: HRWScore(image, n)}
	}
	sort.Slice(scored, func(i, j int) bool {
		if scored[i].score != scored[j].score {
			return scored[i].score > scored[j].score
		}
		return scored[i].name < scored[j].name
	})

	top := make([]string, k)
	for i := 0; i < k; i++ {
		top[i] = scored[i].name
	}
	return top
}
