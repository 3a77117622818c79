/*
Package ports defines the driven ports (interfaces) of the Bifrost widget core.

These interfaces decouple the synchronization core from the host process, the
wire it talks over and the chart renderer.

# Key Interfaces

  - HostStore: the authoritative, versioned key/value state owned by the host (memory, Redis).
  - Transport: the async channel a widget uses to reach its host (in-process, websocket).
  - Renderer: the opaque chart drawing collaborator.
*/
package ports
