// Package mqtt provides MQTT publishing for the Qode engine.
//
// This package manages:
//   - Connection to the broker with auto-reconnect
//   - Tick and job-event publishing with QoS guarantees
//   - Last Will and Testament (LWT) for offline detection
//   - Connection health monitoring
//
// # Architecture
//
// The engine is a producer on the MQTT bus: the live feed publishes each
// tick to qode/ticks/{symbol}, and the scheduler publishes job completion
// events to qode/jobs/{name}/{outcome}. Downstream consumers (dashboards,
// strategy runners, alerting) subscribe directly to the broker, keeping
// them decoupled from the engine process.
//
//	Qode Engine → MQTT Broker → Consumers
//
// # Security Considerations
//
//   - TLS is required for production deployments (cfg.Broker.TLS=true)
//   - Credentials are validated against broker ACL
//   - Anonymous access is only for local development
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT, logger)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	client.PublishTick("NSE_Index_NIFTY", payload)
package mqtt
