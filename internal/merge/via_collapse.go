package merge

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"
)

const viaCollapseBucketSeconds = 120

// FingerprintKey computes the cross-channel dedup fingerprint used by
// both the conversation merge engine (step 3) and the voice manuscript
// view (step 6): a hash of the normalized text, the authoring instant
// rounded down to a 120-second bucket, and the canonical sender.
//
// The 120s bucket absorbs the skew Apple's iMessage-to-SMS fallback
// introduces (observed in the tens of seconds) without colliding
// distinct utterances of the same text. Buckets are fixed, not sliding:
// two copies on either side of a bucket boundary get different keys
// however close together they are.
func FingerprintKey(text string, when time.Time, canonicalSender string) string {
	rounded := when.Unix() / viaCollapseBucketSeconds * viaCollapseBucketSeconds
	base := fmt.Sprintf("%s|%d|%s", strings.TrimSpace(text), rounded, canonicalSender)
	sum := sha256.Sum256([]byte(base))
	return hex.EncodeToString(sum[:])
}
