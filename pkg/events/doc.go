/*
Package events provides an in-memory event bus for AeroSuite's pub/sub
messaging.

The bus broadcasts domain and platform events to interested subscribers
over buffered channels. Publishing never blocks request handling: a single
distribution loop fans events out, and a subscriber whose buffer is full
misses the event (counted, never silent). Delivery is FIFO per publisher;
ordering across publishers is unspecified.

Services publish aggregate events after persistence succeeds, and
background consumers (inference runtime, drift detector, autoscaler
listeners) react without coupling to the write path.
*/
package events
