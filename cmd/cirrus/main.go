// Cirrus - multi-cloud VM inventory mirror.
package main

import (
	// Adapter registration.
	_ "github.com/veldt-io/cirrus/adapters/aws"
	_ "github.com/veldt-io/cirrus/adapters/azure"
	_ "github.com/veldt-io/cirrus/adapters/gcp"
	_ "github.com/veldt-io/cirrus/adapters/openstack"
)

func main() {
	Execute()
}
