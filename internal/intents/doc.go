// Package intents adapts recognized spoken commands to engine calls.
//
// The handler consumes pre-parsed intents from the dialogue bus (newAlarm,
// getAlarms, getNextAlarm, getMissedAlarms, deleteAlarms, answerAlarm),
// invokes the engine's command API and ends each session with a short
// response. It performs no language understanding of its own.
package intents
