// Package mqtt provides the MQTT transport for the Z-Wave bridge.
//
// It wraps eclipse/paho.mqtt.golang with connection management, Last Will
// and Testament for offline detection, panic-safe message handlers, and
// subscription restoration after reconnects.
//
// # Topic Scheme
//
// All topics follow the flat scheme zwbridge/{category}/zwave/{device_id}:
//
//	zwbridge/command/zwave/gate-front    capability commands (in)
//	zwbridge/ack/zwave/gate-front        command acknowledgements (out)
//	zwbridge/state/zwave/gate-front      semantic state updates (out, retained)
//	zwbridge/telemetry/zwave/sensor-x    numeric readings (out)
//	zwbridge/health/{bridge_id}          periodic health reports (out, retained)
//
// Use the Topics builders rather than formatting topics by hand.
package mqtt
