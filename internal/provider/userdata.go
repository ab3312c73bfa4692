package provider

import (
	"fmt"

	"github.com/xelth-com/proxyfleet/internal/config"
)

const userDataTemplate = `#cloud-config
packages:
  - squid
  - httpd-tools

write_files:
  - path: /etc/squid/squid.conf
    content: |
      auth_param basic program /usr/lib64/squid/basic_ncsa_auth  /etc/squid/passwords
      auth_param basic realm proxy
      acl authenticated proxy_auth REQUIRED
      http_access allow authenticated
      http_port %d
      forwarded_for delete
      via off
      follow_x_forwarded_for deny all
      request_header_access X-Forwarded-For deny all
      header_access X_Forwarded_For deny all
  - path: /etc/cron.daily/update.sh
    content: |
      #!/bin/bash
      /usr/bin/yum -y update
      systemctl restart squid

runcmd:
  - htpasswd -nb %s %s >> /etc/squid/passwords
  - chmod a+x /etc/cron.daily/update.sh
  - systemctl start squid
  - systemctl enable squid
`

// UserData renders the cloud-init payload installing the authenticated squid
// daemon on a fresh proxy VM. The config locks squid to a single port and
// strips X-Forwarded-For so the proxy never leaks the caller's address.
func UserData(cfg config.ProxyConfig) string {
	return fmt.Sprintf(userDataTemplate, cfg.Port, cfg.Login, cfg.Password)
}
