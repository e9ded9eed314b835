// Copyright 2016-2019 DutchSec (https://dutchsec.com/)
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package config

import (
	"fmt"
	"os"
	"path/filepath"
)

// DefaultFile is the configuration written by WriteDefaults.
const DefaultFile = `# shadowlure configuration

drain-timeout = "10s"

[control]
address = "127.0.0.1:7070"

[service.ftp]
enabled = true
port = 21
banner = "vsFTPd 3.0.3"
idle-timeout = "2m"

[service.http]
enabled = true
port = 80
banner = "Apache/2.4.29 (Ubuntu)"
page = "login.html"

[service.ssh]
enabled = true
port = 22
banner = "SSH-2.0-OpenSSH_7.4p1 Debian-10+deb9u7"

[channel.console]
type = "console"

[channel.file]
type = "file"
filename = "shadowlure.log"

[[filter]]
channel = ["console", "file"]

[[logging]]
output = "stdout"
level = "info"
`

// DefaultPage is the login page written by WriteDefaults.
const DefaultPage = `<!DOCTYPE html>
<html>
<head><title>System Login</title></head>
<body><h1>System Authentication Required</h1><form method="post">
Username: <input type="text" name="user"><br>
Password: <input type="password" name="pass"><br>
<input type="submit" value="Login"></form></body>
</html>
`

// WriteDefaults writes the default configuration to path and the default
// login page next to it. Existing files are not overwritten.
func WriteDefaults(path string) ([]string, error) {
	files := []struct {
		path string
		data string
	}{
		{path, DefaultFile},
		{filepath.Join(filepath.Dir(path), "login.html"), DefaultPage},
	}

	var written []string
	for _, f := range files {
		if _, err := os.Stat(f.path); err == nil {
			return written, fmt.Errorf("%s already exists", f.path)
		}

		if err := os.WriteFile(f.path, []byte(f.data), 0644); err != nil {
			return written, err
		}

		written = append(written, f.path)
	}

	return written, nil
}
