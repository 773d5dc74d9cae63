/*
Package fluentfwd ships structured log records to a Fluentd (or Fluent Bit)
collector using the Message mode of the Fluent Forward protocol, including:

  - `fluentfwd.Forwarder` - owns one TCP connection to the collector,
    reconnecting lazily, and writes one envelope per record
  - `fluentfwd.Encoder` - serializes records to msgpack, with the Fluent
    EventTime extension and a raw (pre-bin) compatibility mode
  - `fluentfwd.Handler` and `fluentfwd.Core` - adapt `log/slog` and zap to the
    Forwarder

Every envelope is the msgpack array [tag, time, record]. Records are ordered
`Map`s of `Value`s, so fields reach the collector in the order they were
added.

The Forwarder never returns or panics on a forwarding failure. Failures are
handed to the configured `ErrorSink`, which by default writes them to the
internal zap logger (see SetInternalLogger).

Examples of efficiency optimizations:

  - pooled encoders/buffers, so steady state emits do not allocate buffers
  - each envelope is encoded completely before it is written, so a failed
    encode never leaves a partial envelope on the stream
  - key paths for encoding errors are only built when an error occurs
*/
package fluentfwd
