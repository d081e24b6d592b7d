package borzoi

/*------------------------------------------------------------------
 *
 * Purpose:   	Announce the UDP retune control port using DNS-SD
 *
 * Description:
 *
 *     Dashboards and scanner front ends would rather discover the
 *     control port on the local network than be configured with an IP
 *     and port.
 *
 *     This uses the pure-Go github.com/brutella/dnssd package for
 *     cross-platform mDNS/DNS-SD service announcement without requiring
 *     any system daemon or C library dependencies.
 */

import (
	"context"
	"os"
	"strings"

	"github.com/brutella/dnssd"
)

const DNS_SD_SERVICE = "_borzoi-ctl._udp"

/* Get a default service name to publish: "Borzoi on <hostname>", or just
 * "Borzoi" if hostname cannot be obtained. */
func dns_sd_default_service_name() string {
	var hostname, hostnameErr = os.Hostname()
	if hostnameErr != nil {
		return "Borzoi"
	}

	// on some systems, an FQDN is returned; remove domain part
	hostname, _, _ = strings.Cut(hostname, ".")

	return "Borzoi on " + hostname
}

func dns_sd_announce(port int) {
	var cfg = dnssd.Config{ //nolint:exhaustruct
		Name: dns_sd_default_service_name(),
		Type: DNS_SD_SERVICE,
		Port: port,
	}

	var sv, svErr = dnssd.NewService(cfg)
	if svErr != nil {
		text_color_set(TC_COLOR_ERROR)
		tc_printf("DNS-SD: Failed to create service: %v\n", svErr)

		return
	}

	var rp, rpErr = dnssd.NewResponder()
	if rpErr != nil {
		text_color_set(TC_COLOR_ERROR)
		tc_printf("DNS-SD: Failed to create responder: %v\n", rpErr)

		return
	}

	var _, addErr = rp.Add(sv)
	if addErr != nil {
		text_color_set(TC_COLOR_ERROR)
		tc_printf("DNS-SD: Failed to add service: %v\n", addErr)

		return
	}

	text_color_set(TC_COLOR_INFO)
	tc_printf("DNS-SD: Announcing retune control on port %d as '%s'\n", port, cfg.Name)

	go func() {
		var respondErr = rp.Respond(context.Background())
		if respondErr != nil {
			text_color_set(TC_COLOR_ERROR)
			tc_printf("DNS-SD: Responder error: %v\n", respondErr)
		}
	}()
}

/* end dns_sd.go */
