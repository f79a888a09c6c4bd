// Package scanning builds the command plans that hostenum runs against a
// single host.
//
// # Overview
//
// A Planner turns the active profile, tool paths and time budgets into
// tools.Command values. The orchestrator asks for one stage at a time and
// executes the commands through a tools.Runner, so planning never touches
// the network itself.
//
// # Stages
//
// The general TCP scan, OS detection and the optional UDP scan are single
// nmap invocations:
//
//	nmap -sV -sC -T4 --open -Pn -F <ip>
//	nmap -O --osscan-guess -T4 -Pn <ip>
//	nmap -sU --top-ports 100 -T4 -Pn <ip>
//
// Windows stages are Steps with ordered alternatives. A later alternative
// runs only when the earlier one is not accepted:
//
//   - SMB: enum4linux -a, then smbclient -L //<ip> -N
//   - NetBIOS: nmblookup -A, then nbtscan
//   - LDAP: ldapsearch against the root DSE, only when an LDAP port is open
//
// The SNMP stage is an in-process gosnmp probe of sysDescr.0 and sysName.0.
// Its output is rendered in the snmpget text form so the same extraction
// rules apply to it.
//
// # Port Lists
//
// Custom port lists are checked with ValidatePorts before they reach nmap.
package scanning
