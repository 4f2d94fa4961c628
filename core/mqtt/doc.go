// Package mqtt defines the wire protocol spoken between the kernel and the
// vehicle communication adapters over MQTT.
//
// Topics, with a configurable prefix:
//
//	<prefix>/vehicles/<name>/command   kernel -> vehicle, CommandMessage
//	<prefix>/vehicles/<name>/ack       vehicle -> kernel, AckMessage
//	<prefix>/vehicles/<name>/status    vehicle -> kernel, StatusMessage
//
// Payloads are JSON. Every command carries a unique id that the ack echoes.
package mqtt
