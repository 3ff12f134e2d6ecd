/*
Package replica replicates mutable game object state between a single
authority and any number of clients over an unreliable datagram
transport.

The authority is the source of truth: every state change flows through
it and is rebroadcast to the other peers. Incremental updates travel
unreliably and may be lost or reordered; a periodic dead reckoning
sweep resends the full state of every live entity over the reliable
channel and corrects whatever drift the unreliable path caused.

The package does not know what a game object looks like. Hosts register
Transfer types describing the state that goes on the wire, implement
Arena to construct and tear down their own objects, and drive the
engine with one Update call per frame.
*/
package replica
