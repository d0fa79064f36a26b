// Package hermes implements the notification gateway over the voice
// assistant's MQTT protocol.
//
// The client uses Eclipse Paho v2's [autopaho] package for connection
// management with automatic reconnection; subscriptions are re-established
// on every (re-)connect. Inbound messages become the engine's typed events
// (playback finished, hotword detected, session started/ended) or recognized
// intents; outbound calls publish playback requests and dialogue session
// commands. All publishes are fire-and-forget, replies arrive as events.
package hermes
