package simpleverse

import "time"

// nowFunc stamps archive entries.  Tests pin it for reproducible archives.
var nowFunc = time.Now
