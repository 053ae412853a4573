// Package sampler implements the publisher's sampling loop.
//
// On every tick it draws a value for each configured (sensor type, topic)
// pair, encodes it with package telemetry and hands it to a Publisher.
//
//	current_output  [0.1, 0.2]  A      4 dp
//	water_level     [10, 20]    meter  2 dp
//	climate         temperature [20, 30] °C and humidity [40, 70] %, 2 dp
//
// Unknown sensor types are skipped.
package sampler
