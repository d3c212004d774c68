// Package eventbridge publishes envire.Environment events onto a
// gocloud.dev/pubsub topic and replays them on the receiving end, so a
// second process can observe an environment's changes without holding a
// reference to the Environment itself.
//
// The bridge is not a source of truth: a subscriber that misses messages
// (or starts up after some were published) only has an incomplete replay.
// Pairing a bridge subscription with an initial Environment.Serialize
// snapshot is the caller's responsibility.
package eventbridge
